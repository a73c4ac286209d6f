package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provident-certs/internal/hubspot"
)

func sendRequest() *SendEmailRequest {
	return &SendEmailRequest{
		TicketID:          "55",
		CertificateID:     "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		CertificatePDFURL: "https://drive.google.com/file/d/file-1/view",
		DriveURL:          "https://drive.google.com/file/d/file-1/view",

		BrokerEmail:   "pat@acme.com",
		BrokerName:    "Pat Lee",
		BrokerCompany: "Acme Insurance",
		SiteAddress:   "555 W Hastings St, Vancouver",

		SiteID:          "12345",
		SystemID:        "sys1",
		AgreementID:     "agr1",
		BrokerID:        "b1",
		BrokerContactID: "c1",
		RequestorID:     "r1",

		UserName: "Morgan CSR",
	}
}

func activeSite(crm *fakeCRM) {
	crm.objects["companies/12345"] = map[string]string{"current_status": "Active", "name": "Harbour Centre"}
}

func TestSendEmailHappyPath(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}

	err := f.svc.SendEmail(context.Background(), sendRequest())
	require.NoError(t, err)

	// The email went out with the fetched PDF attached.
	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	assert.Equal(t, "pat@acme.com", msg.To)
	assert.Equal(t, "Provident Security Monitoring Certificate #a1b2c3d4", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "Dear Pat Lee")
	assert.Contains(t, msg.HTMLBody, "555 W Hastings St, Vancouver")
	assert.Contains(t, msg.TextBody, "604.664.1087")
	assert.Equal(t, []byte("%PDF-1.4 fetched"), msg.Attachment)

	// Ticket bookkeeping.
	props := f.crm.ticketUpdates["55"]
	require.NotNil(t, props)
	assert.NotEmpty(t, props["certificate_sent_date"])
	assert.Equal(t, "https://drive.google.com/file/d/file-1/view", props["certificate_pdf_url"])

	// Delivery note on the ticket and on the site.
	require.Len(t, f.crm.notes, 1)
	note := f.crm.notes[0]
	assert.Equal(t, "55", note.ToObjectID)
	assert.Equal(t, 228, note.AssocTypeID)
	assert.Contains(t, note.Body, "SECURITY MONITORING CERTIFICATE GENERATED")
	assert.Contains(t, note.Body, "Certificate #a1b2c3d4")
	assert.Contains(t, note.Body, "Morgan CSR")
	assert.Contains(t, note.Body, "PST")

	require.Len(t, f.crm.companyNotes, 1)
	assert.Equal(t, int64(12345), f.crm.companyNotes[0].CompanyID)

	// Association fan-out: site, broker company, broker contact and
	// requestor on the v4 record endpoint, system and agreement batched.
	assert.Equal(t, []fakeAssoc{
		{"ticket", "55", "company", "12345", 0},
		{"ticket", "55", "company", "b1", 0},
		{"ticket", "55", "contact", "c1", 0},
		{"ticket", "55", "contact", "r1", 482},
	}, f.crm.recordAssocs)
	assert.Equal(t, []fakeAssoc{
		{"ticket", "55", "2-2532422", "sys1", 0},
		{"ticket", "55", "2-16284422", "agr1", 0},
	}, f.crm.customAssocs)
}

func TestSendEmailSiteInactive(t *testing.T) {
	f := newCertFixture()
	f.crm.objects["companies/12345"] = map[string]string{"current_status": "Cancelled", "name": "Harbour Centre"}

	err := f.svc.SendEmail(context.Background(), sendRequest())
	var inactiveErr *SiteInactiveError
	require.ErrorAs(t, err, &inactiveErr)
	assert.Equal(t, "Site 'Harbour Centre' is not active (status: Cancelled). Only active sites can receive certificates.", err.Error())
	assert.Empty(t, f.sender.sent)
}

func TestSendEmailSiteStatusUnreadableProceeds(t *testing.T) {
	f := newCertFixture()
	f.crm.getErr["companies/12345"] = errors.New("403")
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}

	err := f.svc.SendEmail(context.Background(), sendRequest())
	require.NoError(t, err)
	assert.Len(t, f.sender.sent, 1)
}

func TestSendEmailDomainMismatchEscalates(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}

	req := sendRequest()
	req.BrokerEmail = "pat@gmail.com"

	err := f.svc.SendEmail(context.Background(), req)
	var mismatchErr *DomainMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Equal(t, "acme.com", mismatchErr.BrokerDomain)
	assert.Equal(t, "gmail.com", mismatchErr.EmailDomain)
	assert.Empty(t, f.sender.sent)

	// The escalation note is already on the ticket.
	require.Len(t, f.crm.notes, 1)
	note := f.crm.notes[0]
	assert.Contains(t, note.Body, "CERTIFICATE ESCALATION REQUIRED")
	assert.Contains(t, note.Body, "pat@gmail.com")
	assert.Equal(t, "55", note.ToObjectID)
}

func TestSendEmailDomainMatchIgnoresWWW(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "www.Acme.com"}

	err := f.svc.SendEmail(context.Background(), sendRequest())
	require.NoError(t, err)
	assert.Len(t, f.sender.sent, 1)
}

func TestSendEmailBrokerCompanyCreatedWhenMissing(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)

	req := sendRequest()
	req.BrokerID = ""

	err := f.svc.SendEmail(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.crm.createdCompanies, 1)
	for _, props := range f.crm.createdCompanies {
		assert.Equal(t, "Acme Insurance", props["name"])
		assert.Equal(t, "Insurance Broker", props["company_type"])
	}
}

func TestSendEmailBrokerCompanyTypeUpgraded(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.searches["companies/name/Acme Insurance"] = []hubspot.ObjectResult{{
		ID:         "b9",
		Properties: map[string]string{"name": "Acme Insurance", "domain": "acme.com", "company_type": "Customer"},
	}}

	req := sendRequest()
	req.BrokerID = ""

	err := f.svc.SendEmail(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"company_type": "Insurance Broker"}, f.crm.companyUpdates["b9"])
}

func TestSendEmailManualContactsCreated(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}

	req := sendRequest()
	req.RequestorID = ""
	req.BrokerContactID = ""
	req.ManualRequestorFirstName = "Ray"
	req.ManualRequestorLastName = "Quest"
	req.ManualRequestorEmail = "ray@site.com"
	req.ManualRequestorPhone = "604-555-0199"
	req.ManualBrokerFirstName = "Bea"
	req.ManualBrokerLastName = "Broker"
	req.ManualBrokerEmail = "bea@acme.com"

	err := f.svc.SendEmail(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.crm.createdContacts, 2)
	emails := map[string]bool{}
	for _, props := range f.crm.createdContacts {
		emails[props["email"]] = true
	}
	assert.True(t, emails["ray@site.com"])
	assert.True(t, emails["bea@acme.com"])

	// Both new contacts are associated to their companies with the
	// HubSpot default type, before the ticket fan-out runs.
	var defaultAssocs int
	for _, a := range f.crm.recordAssocs {
		if a.FromType == "contact" && a.ToType == "company" {
			defaultAssocs++
		}
	}
	assert.Equal(t, 2, defaultAssocs)
}

func TestSendEmailManualUnderwriterCreated(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}

	req := sendRequest()
	req.ManualUnderwriterName = "Lloyd's of London"

	err := f.svc.SendEmail(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.crm.createdCompanies, 1)
	var underwriterID string
	for id, props := range f.crm.createdCompanies {
		assert.Equal(t, "Insurance Underwriter", props["company_type"])
		underwriterID = id
	}

	var found bool
	for _, a := range f.crm.recordAssocs {
		if a.FromType == "company" && a.FromID == underwriterID && a.TypeID == 486 {
			found = true
		}
	}
	assert.True(t, found, "underwriter to ticket association missing")
}

func TestSendEmailPDFFetchFailureStillSends(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}
	f.svc.fetchPDF = func(_ context.Context, _ string) ([]byte, error) { return nil, errors.New("404") }

	err := f.svc.SendEmail(context.Background(), sendRequest())
	require.NoError(t, err)
	require.Len(t, f.sender.sent, 1)
	assert.Nil(t, f.sender.sent[0].Attachment)
}

func TestSendEmailSMTPNotConfigured(t *testing.T) {
	f := newCertFixture()
	f.sender.configured = false

	err := f.svc.SendEmail(context.Background(), sendRequest())
	require.Error(t, err)
}

func TestSendEmailSendFailure(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}
	f.sender.sendErr = errors.New("smtp down")

	err := f.svc.SendEmail(context.Background(), sendRequest())
	require.Error(t, err)
	assert.Empty(t, f.crm.ticketUpdates, "no bookkeeping before a successful send")
}

func TestSendEmailBookkeepingFailuresTolerated(t *testing.T) {
	f := newCertFixture()
	activeSite(f.crm)
	f.crm.objects["companies/b1"] = map[string]string{"domain": "acme.com"}
	f.crm.updateTicketErr = errors.New("boom")
	f.crm.noteErr = errors.New("boom")
	f.crm.companyNoteErr = errors.New("boom")
	f.crm.assocRecordsErr = errors.New("boom")
	f.crm.customAssocErr = errors.New("boom")

	err := f.svc.SendEmail(context.Background(), sendRequest())
	require.NoError(t, err)
	assert.Len(t, f.sender.sent, 1)
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "acme.com", emailDomain("Pat@Acme.com"))
	assert.Equal(t, "", emailDomain("not-an-email"))
	assert.Equal(t, "", emailDomain("trailing@"))
}

func TestDomainMatches(t *testing.T) {
	assert.True(t, domainMatches("pat@acme.com", "acme.com"))
	assert.True(t, domainMatches("pat@acme.com", "www.acme.com"))
	assert.True(t, domainMatches("pat@ACME.com", "Acme.Com"))
	assert.True(t, domainMatches("pat@acme.com", ""), "companies without a domain always pass")
	assert.False(t, domainMatches("pat@gmail.com", "acme.com"))
	assert.False(t, domainMatches("no-at-sign", "acme.com"))
}
