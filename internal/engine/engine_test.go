package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"provident-certs/internal/lock"
	"provident-certs/internal/models"
)

const (
	testAgreementTypeID = "2-1111111"
	testDeviceTypeID    = "2-2222222"
)

// crmStatusError mimics a client error that carries an HTTP status.
type crmStatusError struct{ status int }

func (e *crmStatusError) Error() string   { return fmt.Sprintf("hubspot: status %d", e.status) }
func (e *crmStatusError) HTTPStatus() int { return e.status }

func populatedCRM() *fakeCRM {
	crm := newFakeCRM()
	crm.objects[testAgreementTypeID+"/agr1"] = map[string]string{
		"hs_object_id":                 "agr1",
		"agreement_plan_name":          "Services Plan [12] Gold",
		"agreement_plan_effectivedate": "2024-03-15",
	}
	crm.objects[testSystemTypeID+"/sys1"] = map[string]string{
		"hs_object_id":         "sys1",
		"communication_path_1": "01",
		"certificate_counter":  "2",
	}
	crm.objects["companies/12345"] = map[string]string{
		"hs_object_id": "12345",
		"name":         "Harbour Centre",
		"address":      "555 W Hastings St",
		"city":         "Vancouver",
		"state":        "BC",
		"zip":          "V6B 4N6",
	}
	crm.objects["contacts/c1"] = map[string]string{"firstname": "Jane", "lastname": "Doe"}
	crm.associations[testAgreementTypeID+"/agr1/contacts"] = []string{"c1"}
	crm.searches[testDeviceTypeID+"/sys1"] = []map[string]string{
		{
			models.PropDeviceDescription: "3 Front Door",
			models.PropDeviceType:        "1",
			models.PropDeviceZone:        "3",
		},
		{
			models.PropDeviceDescription: "7 Lobby Motion",
			models.PropDeviceType:        "2",
			models.PropDeviceZone:        "7",
		},
	}
	return crm
}

func newTestEngine(crm *fakeCRM) *Engine {
	logger := zap.NewNop()
	fetcher := NewFetcher(crm, testSystemTypeID, testAgreementTypeID, testDeviceTypeID, logger)
	allocator := NewAllocator(crm, testSystemTypeID, lock.NewKeyedMutex(), logger)
	return New(fetcher, allocator, logger)
}

func TestGenerateEndToEnd(t *testing.T) {
	crm := populatedCRM()
	e := newTestEngine(crm)

	fields, err := e.Generate(context.Background(), "agr1", "sys1", "12345", "broker@acme.com", "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, "12345-003", fields["CERTIFICATE_Number"])
	assert.Equal(t, "Harbour Centre", fields["SITE_Name"])
	assert.Equal(t, "Jane Doe", fields["AGREEMENT_Customer_Name"])
	assert.Equal(t, "BLINK mesh radio", fields["Path_Primary"])
	assert.Equal(t, 1, fields["Count_Perimeter"])
	assert.Equal(t, 1, fields["Count_Motion"])
	assert.Equal(t, "3", crm.objects[testSystemTypeID+"/sys1"]["certificate_counter"])
}

func TestGenerateValidationFailureBeforeAllocation(t *testing.T) {
	crm := populatedCRM()
	crm.objects["companies/12345"] = map[string]string{"name": "Harbour Centre"}
	e := newTestEngine(crm)

	_, err := e.Generate(context.Background(), "agr1", "sys1", "12345", "", "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Violations, "Site address is missing")
	assert.Equal(t, "2", crm.objects[testSystemTypeID+"/sys1"]["certificate_counter"],
		"counter must not move when validation fails")
}

func TestGenerateNoDevices(t *testing.T) {
	crm := populatedCRM()
	delete(crm.searches, testDeviceTypeID+"/sys1")
	e := newTestEngine(crm)

	_, err := e.Generate(context.Background(), "agr1", "sys1", "12345", "", "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"No devices found on system"}, vErr.Violations)
}

func TestGenerateTransportFailure(t *testing.T) {
	crm := populatedCRM()
	crm.getErr = errors.New("connection refused")
	e := newTestEngine(crm)

	_, err := e.Generate(context.Background(), "agr1", "sys1", "12345", "", "")
	var fErr *FetchError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, "agreement", fErr.Entity)
}

func TestFetchToleratesStatusErrors(t *testing.T) {
	crm := populatedCRM()
	crm.getErr = &crmStatusError{status: 404}
	fetcher := NewFetcher(crm, testSystemTypeID, testAgreementTypeID, testDeviceTypeID, zap.NewNop())

	bundle, err := fetcher.Fetch(context.Background(), "agr1", "sys1", "12345")
	require.NoError(t, err)
	assert.Empty(t, bundle.Agreement)
	assert.Empty(t, bundle.Site)
	assert.Empty(t, bundle.Customer)
}

func TestFetchNoCustomerAssociation(t *testing.T) {
	crm := populatedCRM()
	delete(crm.associations, testAgreementTypeID+"/agr1/contacts")
	fetcher := NewFetcher(crm, testSystemTypeID, testAgreementTypeID, testDeviceTypeID, zap.NewNop())

	bundle, err := fetcher.Fetch(context.Background(), "agr1", "sys1", "12345")
	require.NoError(t, err)
	assert.Empty(t, bundle.Customer)
}

func TestFetchDeviceSearchStatusErrorMeansNoDevices(t *testing.T) {
	crm := populatedCRM()
	crm.searchErr = &crmStatusError{status: 403}
	fetcher := NewFetcher(crm, testSystemTypeID, testAgreementTypeID, testDeviceTypeID, zap.NewNop())

	bundle, err := fetcher.Fetch(context.Background(), "agr1", "sys1", "12345")
	require.NoError(t, err)
	assert.Empty(t, bundle.Devices)
}

func TestFetchDeviceMapping(t *testing.T) {
	crm := populatedCRM()
	crm.searches[testDeviceTypeID+"/sys1"] = []map[string]string{{
		models.PropDeviceDescription: "9 Sump Pit",
		models.PropDeviceType:        "16",
		models.PropDeviceSubtype:     "318",
		models.PropDeviceSensorGroup: "48",
		models.PropDeviceZone:        "9",
		models.PropDeviceADCID:       "adc-9",
	}}
	fetcher := NewFetcher(crm, testSystemTypeID, testAgreementTypeID, testDeviceTypeID, zap.NewNop())

	bundle, err := fetcher.Fetch(context.Background(), "agr1", "sys1", "12345")
	require.NoError(t, err)
	require.Len(t, bundle.Devices, 1)
	assert.Equal(t, models.Device{
		Description:      "9 Sump Pit",
		Zone:             "9",
		ADCDeviceID:      "adc-9",
		EquipmentType:    "16",
		EquipmentSubtype: "318",
		SensorGroup:      "48",
	}, bundle.Devices[0])
}
