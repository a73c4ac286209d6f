package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"provident-certs/internal/mailer"
)

// Sender delivers outbound certificate mail.
type Sender interface {
	Configured() bool
	Send(msg *mailer.Message) (string, error)
}

// SendEmailRequest is the send-certificate payload: the ticket, the
// rendered PDF, the recipient, and the CRM records to fan associations
// out to. Manual fields create the contact or underwriter records the
// CSR typed in by hand.
type SendEmailRequest struct {
	TicketID          string
	CertificateID     string
	CertificatePDFURL string
	DriveURL          string
	PreviewImageURL   string

	BrokerEmail   string
	BrokerName    string
	BrokerCompany string
	SiteAddress   string

	SiteID          string
	SystemID        string
	AgreementID     string
	BrokerID        string
	BrokerContactID string
	RequestorID     string
	UnderwriterID   string

	ManualRequestorFirstName string
	ManualRequestorLastName  string
	ManualRequestorEmail     string
	ManualRequestorPhone     string

	ManualBrokerFirstName string
	ManualBrokerLastName  string
	ManualBrokerEmail     string
	ManualBrokerPhone     string

	ManualUnderwriterName string

	UserName string
}

// SiteInactiveError rejects certificate delivery for sites that are not
// currently monitored.
type SiteInactiveError struct {
	SiteName string
	Status   string
}

func (e *SiteInactiveError) Error() string {
	return fmt.Sprintf("Site '%s' is not active (status: %s). Only active sites can receive certificates.", e.SiteName, e.Status)
}

// DomainMismatchError means the broker contact's email domain does not
// match the broker company's domain. An escalation note has already
// been left on the ticket when this error is returned.
type DomainMismatchError struct {
	BrokerDomain string
	EmailDomain  string
}

func (e *DomainMismatchError) Error() string {
	return "Domain mismatch detected. Escalation note created. Manager review required."
}

// SendEmail delivers the rendered certificate to the broker and records
// the delivery in the CRM: ticket properties, notes on ticket and site,
// and the full association fan-out. CRM bookkeeping failures after a
// successful send are logged, not returned.
func (s *CertificateService) SendEmail(ctx context.Context, req *SendEmailRequest) error {
	if !s.mailer.Configured() {
		return fmt.Errorf("smtp not configured")
	}

	if req.SiteID != "" {
		if err := s.checkSiteActive(ctx, req.SiteID); err != nil {
			return err
		}
	}

	brokerID, brokerDomain := s.resolveBroker(ctx, req)

	requestorID := req.RequestorID
	if requestorID == "" && req.ManualRequestorEmail != "" {
		requestorID = s.createOrGetContact(ctx, req.ManualRequestorEmail,
			req.ManualRequestorFirstName, req.ManualRequestorLastName, req.ManualRequestorPhone, req.SiteID)
	}

	brokerContactID := req.BrokerContactID
	if brokerContactID == "" && req.ManualBrokerEmail != "" {
		brokerContactID = s.createOrGetContact(ctx, req.ManualBrokerEmail,
			req.ManualBrokerFirstName, req.ManualBrokerLastName, req.ManualBrokerPhone, brokerID)
	}

	underwriterID := req.UnderwriterID
	if underwriterID == "" && req.ManualUnderwriterName != "" {
		underwriterID = s.createOrGetUnderwriter(ctx, req.ManualUnderwriterName)
	}

	if brokerDomain != "" && req.BrokerEmail != "" && !domainMatches(req.BrokerEmail, brokerDomain) {
		emailDomain := emailDomain(req.BrokerEmail)
		s.leaveEscalationNote(ctx, req, brokerDomain, emailDomain)
		return &DomainMismatchError{BrokerDomain: brokerDomain, EmailDomain: emailDomain}
	}

	pdf, err := s.fetchPDF(ctx, req.CertificatePDFURL)
	if err != nil {
		s.logger.Warn("Could not fetch certificate PDF for attachment",
			zap.String("pdf_url", req.CertificatePDFURL),
			zap.Error(err),
		)
		pdf = nil
	}

	if _, err := s.mailer.Send(s.buildMessage(req, pdf)); err != nil {
		return err
	}

	s.recordDelivery(ctx, req, brokerID, brokerContactID, requestorID, underwriterID)
	return nil
}

func (s *CertificateService) checkSiteActive(ctx context.Context, siteID string) error {
	props, err := s.crm.GetProperties(ctx, "companies", siteID, []string{"current_status", "name"})
	if err != nil {
		// The send proceeds when the status cannot be read; only a
		// positively inactive site blocks delivery.
		s.logger.Warn("Could not read site status", zap.String("site_id", siteID), zap.Error(err))
		return nil
	}
	if props["current_status"] != "Active" {
		name := props["name"]
		if name == "" {
			name = "Unknown"
		}
		return &SiteInactiveError{SiteName: name, Status: props["current_status"]}
	}
	return nil
}

// resolveBroker validates or creates the broker company and returns its
// id plus the company domain used for the email-domain check.
func (s *CertificateService) resolveBroker(ctx context.Context, req *SendEmailRequest) (brokerID, brokerDomain string) {
	brokerID = req.BrokerID

	switch {
	case req.BrokerCompany != "" && req.BrokerID == "":
		existing, err := s.crm.SearchCompanyByName(ctx, req.BrokerCompany)
		if err != nil {
			s.logger.Warn("Broker company search failed", zap.String("name", req.BrokerCompany), zap.Error(err))
			return brokerID, ""
		}
		if existing != nil {
			brokerID = existing.ID
			brokerDomain = existing.Properties["domain"]
			if !strings.Contains(existing.Properties["company_type"], "Insurance Broker") {
				if err := s.crm.UpdateCompany(ctx, brokerID, map[string]string{"company_type": "Insurance Broker"}); err != nil {
					s.logger.Warn("Could not update broker company type", zap.String("broker_id", brokerID), zap.Error(err))
				}
			}
			return brokerID, brokerDomain
		}
		newID, err := s.crm.CreateCompany(ctx, map[string]string{
			"name":         req.BrokerCompany,
			"company_type": "Insurance Broker",
		})
		if err != nil {
			s.logger.Warn("Could not create broker company", zap.String("name", req.BrokerCompany), zap.Error(err))
			return brokerID, ""
		}
		return newID, ""

	case req.BrokerID != "":
		props, err := s.crm.GetProperties(ctx, "companies", req.BrokerID, []string{"domain"})
		if err != nil {
			s.logger.Warn("Could not read broker domain", zap.String("broker_id", req.BrokerID), zap.Error(err))
			return brokerID, ""
		}
		return brokerID, props["domain"]
	}
	return brokerID, ""
}

// createOrGetContact finds a contact by email or creates it, then
// associates it to companyID when given. Failures resolve to "" so the
// send can still go out.
func (s *CertificateService) createOrGetContact(ctx context.Context, email, firstName, lastName, phone, companyID string) string {
	results, err := s.crm.SearchByProperty(ctx, "contacts", "email", "EQ", email,
		[]string{"firstname", "lastname", "email", "phone"}, 1)
	if err != nil {
		s.logger.Warn("Contact search failed", zap.String("email", email), zap.Error(err))
		return ""
	}

	var contactID string
	if len(results) > 0 {
		contactID = results[0].ID
	} else {
		props := map[string]string{
			"email":     email,
			"firstname": firstName,
			"lastname":  lastName,
		}
		if phone != "" {
			props["phone"] = phone
		}
		contactID, err = s.crm.CreateContact(ctx, props)
		if err != nil {
			s.logger.Warn("Contact create failed", zap.String("email", email), zap.Error(err))
			return ""
		}
	}

	if companyID != "" {
		if err := s.crm.AssociateRecords(ctx, "contact", contactID, "company", companyID, 0); err != nil {
			s.logger.Warn("Contact to company association failed",
				zap.String("contact_id", contactID),
				zap.String("company_id", companyID),
				zap.Error(err),
			)
		}
	}
	return contactID
}

func (s *CertificateService) createOrGetUnderwriter(ctx context.Context, name string) string {
	existing, err := s.crm.SearchCompanyByName(ctx, name)
	if err != nil {
		s.logger.Warn("Underwriter search failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	if existing != nil {
		if !strings.Contains(existing.Properties["company_type"], "Insurance Underwriter") {
			if err := s.crm.UpdateCompany(ctx, existing.ID, map[string]string{"company_type": "Insurance Underwriter"}); err != nil {
				s.logger.Warn("Could not update underwriter company type", zap.String("company_id", existing.ID), zap.Error(err))
			}
		}
		return existing.ID
	}

	id, err := s.crm.CreateCompany(ctx, map[string]string{
		"name":         name,
		"company_type": "Insurance Underwriter",
	})
	if err != nil {
		s.logger.Warn("Underwriter create failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	return id
}

func (s *CertificateService) leaveEscalationNote(ctx context.Context, req *SendEmailRequest, brokerDomain, emailDomain string) {
	note := fmt.Sprintf(`<h3>CERTIFICATE ESCALATION REQUIRED</h3>
<p><strong>Contact Email Domain Mismatch Detected</strong></p>
<p><strong>Broker Company:</strong> %s<br>
<strong>Broker Domain:</strong> %s</p>
<p><strong>Contact Name:</strong> %s<br>
<strong>Contact Email:</strong> %s<br>
<strong>Contact Domain:</strong> %s</p>
<p><strong style="color: red;">ACTION REQUIRED:</strong><br>
Please verify this is the correct contact before sending the certificate.</p>`,
		req.BrokerCompany, brokerDomain, req.BrokerName, req.BrokerEmail, emailDomain)

	if err := s.crm.CreateNote(ctx, note, req.TicketID, noteToTicketTypeID); err != nil {
		s.logger.Error("Could not create escalation note",
			zap.String("ticket_id", req.TicketID),
			zap.Error(err),
		)
	}
}

const noteToTicketTypeID = 228

func (s *CertificateService) buildMessage(req *SendEmailRequest, pdf []byte) *mailer.Message {
	subject := fmt.Sprintf("Provident Security Monitoring Certificate #%s", shortID(req.CertificateID))

	htmlBody := fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; font-size: 14px; color: #333;">
<p>Dear %s,</p>
<p>Please find attached the current Security Monitoring Certificate for Provident services at <strong>%s</strong>.</p>
<p>Should you have any questions, please contact us 24/7 by return email or by calling 604.664.1087</p>
<p>Thank you.</p>
<p>Provident Security<br>Customer Service Team</p>
</body>
</html>`, req.BrokerName, req.SiteAddress)

	textBody := fmt.Sprintf(`Dear %s,

Please find attached the current Security Monitoring Certificate for Provident services at %s.

Should you have any questions, please contact us 24/7 by return email or by calling 604.664.1087

Thank you.

Provident Security
Customer Service Team`, req.BrokerName, req.SiteAddress)

	return &mailer.Message{
		To:             req.BrokerEmail,
		Subject:        subject,
		TextBody:       textBody,
		HTMLBody:       htmlBody,
		AttachmentName: "certificate.pdf",
		Attachment:     pdf,
	}
}

// recordDelivery updates the ticket, leaves notes on the ticket and the
// site, and creates the record associations. Every step is best-effort.
func (s *CertificateService) recordDelivery(ctx context.Context, req *SendEmailRequest, brokerID, brokerContactID, requestorID, underwriterID string) {
	driveLink := req.DriveURL
	if driveLink == "" {
		driveLink = req.CertificatePDFURL
	}

	if err := s.crm.UpdateTicketProperties(ctx, req.TicketID, map[string]string{
		"certificate_sent_date": strconv.FormatInt(s.now().UTC().UnixMilli(), 10),
		"certificate_pdf_url":   driveLink,
	}); err != nil {
		s.logger.Warn("Could not update ticket properties",
			zap.String("ticket_id", req.TicketID),
			zap.Error(err),
		)
	}

	note := s.buildDeliveryNote(ctx, req, brokerID, brokerContactID, requestorID, driveLink)

	if err := s.crm.CreateNote(ctx, note, req.TicketID, noteToTicketTypeID); err != nil {
		s.logger.Warn("Could not create note on ticket",
			zap.String("ticket_id", req.TicketID),
			zap.Error(err),
		)
	}

	if req.SiteID != "" {
		if siteID, err := strconv.ParseInt(req.SiteID, 10, 64); err == nil {
			if err := s.crm.CreateCompanyNote(ctx, siteID, note); err != nil {
				s.logger.Warn("Could not create note on site",
					zap.String("site_id", req.SiteID),
					zap.Error(err),
				)
			}
		}
	}

	s.fanOutAssociations(ctx, req, brokerID, brokerContactID, requestorID, underwriterID)
}

func (s *CertificateService) buildDeliveryNote(ctx context.Context, req *SendEmailRequest, brokerID, brokerContactID, requestorID, driveLink string) string {
	csrName := req.UserName
	if csrName == "" {
		csrName = "Customer Service Team"
	}

	requestorCell := "Unknown"
	if requestorID != "" {
		props, err := s.crm.GetProperties(ctx, "contacts", requestorID, []string{"firstname", "lastname"})
		if err == nil {
			name := strings.TrimSpace(props["firstname"] + " " + props["lastname"])
			if name == "" {
				name = "Unknown"
			}
			requestorCell = s.recordLink("0-1", requestorID, name)
		}
	}

	brokerContactCell := req.BrokerName
	if brokerContactID != "" {
		brokerContactCell = s.recordLink("0-1", brokerContactID, req.BrokerName)
	}

	brokerCompanyCell := req.BrokerCompany
	if brokerID != "" {
		brokerCompanyCell = s.recordLink("0-2", brokerID, req.BrokerCompany)
	}

	certDate := s.now().In(pacific).Format("January 02, 2006 at 03:04 PM") + " PST"
	id := shortID(req.CertificateID)

	return fmt.Sprintf(`<h3>SECURITY MONITORING CERTIFICATE GENERATED</h3>
<p><strong>Certificate #%s</strong> was generated on %s</p>
<table style="border-collapse: collapse; width: 100%%;">
<tr><td style="padding: 8px; border: 1px solid #ddd;"><strong>CSR:</strong></td><td style="padding: 8px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 8px; border: 1px solid #ddd;"><strong>Requestor:</strong></td><td style="padding: 8px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 8px; border: 1px solid #ddd;"><strong>Broker Company:</strong></td><td style="padding: 8px; border: 1px solid #ddd;">%s</td></tr>
<tr><td style="padding: 8px; border: 1px solid #ddd;"><strong>Broker Contact:</strong></td><td style="padding: 8px; border: 1px solid #ddd;">%s</td></tr>
</table>
<p><strong>Certificate #%s was generated and added to SITE folder.</strong></p>
<p><a href="%s" target="_blank">View Certificate in Google Drive</a></p>`,
		id, certDate, csrName, requestorCell, brokerCompanyCell, brokerContactCell, id, driveLink)
}

// recordLink builds a portal-agnostic CRM record link for note bodies.
func (s *CertificateService) recordLink(objectTypeID, recordID, label string) string {
	return fmt.Sprintf(`<a href="https://app.hubspot.com/contacts/%s/record/%s/%s" target="_blank">%s</a>`,
		s.hubspotCfg.PortalID, objectTypeID, recordID, label)
}

func (s *CertificateService) fanOutAssociations(ctx context.Context, req *SendEmailRequest, brokerID, brokerContactID, requestorID, underwriterID string) {
	type assoc struct {
		name string
		run  func() error
	}

	var steps []assoc
	if req.SiteID != "" {
		steps = append(steps, assoc{"ticket-site", func() error {
			return s.crm.AssociateRecords(ctx, "ticket", req.TicketID, "company", req.SiteID, s.hubspotCfg.SiteAssociationTypeID)
		}})
	}
	if underwriterID != "" {
		steps = append(steps, assoc{"underwriter-ticket", func() error {
			return s.crm.AssociateRecords(ctx, "company", underwriterID, "ticket", req.TicketID, s.hubspotCfg.UnderwriterAssociationTypeID)
		}})
	}
	if brokerID != "" {
		steps = append(steps, assoc{"ticket-broker-company", func() error {
			return s.crm.AssociateRecords(ctx, "ticket", req.TicketID, "company", brokerID, s.hubspotCfg.BrokerCompanyAssociationTypeID)
		}})
	}
	if req.SystemID != "" {
		steps = append(steps, assoc{"ticket-system", func() error {
			return s.crm.AssociateCustomObjects(ctx, "ticket", req.TicketID, s.hubspotCfg.SystemTypeID, req.SystemID, s.hubspotCfg.SystemAssociationTypeID)
		}})
	}
	if req.AgreementID != "" {
		steps = append(steps, assoc{"ticket-agreement", func() error {
			return s.crm.AssociateCustomObjects(ctx, "ticket", req.TicketID, s.hubspotCfg.AgreementTypeID, req.AgreementID, s.hubspotCfg.AgreementAssociationTypeID)
		}})
	}
	if brokerContactID != "" {
		steps = append(steps, assoc{"ticket-broker-contact", func() error {
			return s.crm.AssociateRecords(ctx, "ticket", req.TicketID, "contact", brokerContactID, s.hubspotCfg.BrokerContactAssociationTypeID)
		}})
	}
	if requestorID != "" {
		steps = append(steps, assoc{"ticket-requestor", func() error {
			return s.crm.AssociateRecords(ctx, "ticket", req.TicketID, "contact", requestorID, s.hubspotCfg.RequestorAssociationTypeID)
		}})
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			s.logger.Warn("Association failed",
				zap.String("association", step.name),
				zap.String("ticket_id", req.TicketID),
				zap.Error(err),
			)
		}
	}
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

func domainMatches(email, companyDomain string) bool {
	if companyDomain == "" {
		return true
	}
	d := emailDomain(email)
	if d == "" {
		return false
	}
	normalize := func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "www.")
	}
	return normalize(d) == normalize(companyDomain)
}
