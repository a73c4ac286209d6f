package engine

import (
	"context"
	"errors"

	"provident-certs/internal/models"

	"go.uber.org/zap"
)

// Properties pulled per entity. The agreement list covers the plan,
// partition and status-flag fields the assembler probes.
var agreementProperties = []string{
	"hs_object_id", "agreement_plan_name", "agreement_plan_effectivedate",
	"agreement_plan_supervision", "agreement_plan_communication_path_primary",
	"agreement_plan_communication_path_secondary", "agreement_plan_communication_15746",
	"agreement_plan_communication_15747", "agreement_plan_gateway_14380",
	"agreement_partitions_included", "agreement_partitions_additional", "agreement_partitions_total",
	"agreement_plan_intrusion_14385", "agreement_plan_intrusion_14386", "agreement_plan_intrusion_14387",
	"agreement_plan_intrusion_14388", "agreement_plan_intrusion_14399", "agreement_plan_intrusion_15082",
	"agreement_plan_fire_14389", "agreement_plan_fire_14390", "agreement_plan_fire_14391",
	"agreement_plan_fire_14401", "agreement_plan_environmental_14393", "agreement_plan_environmental_14394",
	"agreement_plan_environmental_14395", "agreement_plan_environmental_14396", "agreement_plan_environmental_14397",
	"agreement_plan_integratedsystems_14398", "agreement_plan_integratedsystems_14726",
	"agreement_plan_integratedsystems_11571", "agreement_plan_integratedsystems_15787",
	"agreement_plan_integratedsystems_15272", "agreement_plan_integratedsystems_14920",
	"agreement_plan_integratedsystems_14631", "agreement_plan_response_15252",
	"agreement_plan_verify_14372", "agreement_plan_trespass_15756", "agreement_plan_trespass_15753",
	"agreement_plan_trespass_15754", "agreement_plan_trespass_15753_quantity",
	"agreement_plan_trespass_15754_quantity", "agreement_plan_trespass_15756_quantity",
	"agreement_plan_response_14366", "agreement_plan_response_14367",
	"agreement_response_guarantee", "agreement_plan_response_guarantee",
}

var systemProperties = []string{
	"hs_object_id", "name", "communication_path_1", "communication_path_2", "integrations_gate_fire",
}

var siteProperties = []string{
	"name", "mas_site_name", "address", "address2", "city", "state", "zip", "site_type",
}

var customerProperties = []string{
	"firstname", "lastname", "address", "city", "state", "zip",
}

var deviceProperties = []string{
	models.PropDeviceDescription, models.PropDeviceZone, models.PropDeviceType,
	"alarm_com_central_station_reporting_type", "alarm_com_power_source",
	models.PropDeviceADCID, models.PropDevicePartition, models.PropDeviceInstallDate,
	models.PropDeviceSensorGroup, models.PropDeviceSubtype,
}

const deviceSearchLimit = 100

// Fetcher gathers the raw property bags one certificate needs.
type Fetcher struct {
	crm             CRM
	systemTypeID    string
	agreementTypeID string
	deviceTypeID    string
	logger          *zap.Logger
}

func NewFetcher(crm CRM, systemTypeID, agreementTypeID, deviceTypeID string, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		crm:             crm,
		systemTypeID:    systemTypeID,
		agreementTypeID: agreementTypeID,
		deviceTypeID:    deviceTypeID,
		logger:          logger,
	}
}

// Fetch reads agreement, system, site, the agreement's first associated
// contact, and the system's devices. An entity whose read answered with
// a non-success status becomes an empty bag; validation is the gate.
func (f *Fetcher) Fetch(ctx context.Context, agreementID, systemID, siteID string) (*models.Bundle, error) {
	bundle := &models.Bundle{}

	var err error
	if bundle.Agreement, err = f.readProperties(ctx, "agreement", f.agreementTypeID, agreementID, agreementProperties); err != nil {
		return nil, err
	}
	if bundle.System, err = f.readProperties(ctx, "system", f.systemTypeID, systemID, systemProperties); err != nil {
		return nil, err
	}
	if bundle.Site, err = f.readProperties(ctx, "site", "companies", siteID, siteProperties); err != nil {
		return nil, err
	}

	if bundle.Customer, err = f.fetchCustomer(ctx, agreementID); err != nil {
		return nil, err
	}

	results, err := f.crm.SearchByAssociation(ctx, f.deviceTypeID, f.systemTypeID, systemID, deviceProperties, deviceSearchLimit)
	if err != nil {
		if !isStatusError(err) {
			return nil, &FetchError{Entity: "devices", Err: err}
		}
		results = nil
	}
	bundle.Devices = make([]models.Device, 0, len(results))
	for _, props := range results {
		bundle.Devices = append(bundle.Devices, models.DeviceFromProperties(props))
	}

	f.logger.Info("Fetched certificate data",
		zap.String("agreement_id", agreementID),
		zap.String("system_id", systemID),
		zap.String("site_id", siteID),
		zap.Int("device_count", len(bundle.Devices)),
	)
	return bundle, nil
}

// fetchCustomer resolves the agreement's first associated contact. No
// association means an empty customer, which validation rejects later.
func (f *Fetcher) fetchCustomer(ctx context.Context, agreementID string) (map[string]string, error) {
	ids, err := f.crm.GetAssociatedIDs(ctx, f.agreementTypeID, agreementID, "contacts")
	if err != nil {
		if !isStatusError(err) {
			return nil, &FetchError{Entity: "customer associations", Err: err}
		}
		return map[string]string{}, nil
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	return f.readProperties(ctx, "customer", "contacts", ids[0], customerProperties)
}

func (f *Fetcher) readProperties(ctx context.Context, entity, objectType, id string, properties []string) (map[string]string, error) {
	props, err := f.crm.GetProperties(ctx, objectType, id, properties)
	if err != nil {
		if isStatusError(err) {
			f.logger.Warn("CRM read returned non-success status, continuing with empty properties",
				zap.String("entity", entity),
				zap.String("object_id", id),
				zap.Error(err),
			)
			return map[string]string{}, nil
		}
		return nil, &FetchError{Entity: entity, Err: err}
	}
	if props == nil {
		props = map[string]string{}
	}
	return props, nil
}

func isStatusError(err error) bool {
	var se statusError
	return errors.As(err, &se)
}
