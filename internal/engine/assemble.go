package engine

import (
	"fmt"
	"time"

	"provident-certs/internal/models"
)

// Certificate timestamps print in Pacific time regardless of where the
// service runs.
var pacific = time.FixedZone("PST", -8*60*60)

// Provider identity printed on every certificate.
const (
	providerName    = "Provident Security Corp"
	providerAddress = "9123 Bentley Street, Unit 118"
	providerCity    = "Vancouver"
	providerState   = "B.C."
	providerZip     = "V6E 2E9"
	providerPhone   = "(604) 254-9734"
)

// Agreement status-flag suffixes the assembler probes. Each suffix is
// looked up under the prefixes below, first hit wins, and lands under
// the normalized AGREEMENT_Status_{suffix} key.
var statusFieldSuffixes = []string{
	"15746", "15747", "14380", "14385", "14386", "14387", "14388", "14399", "15082",
	"14389", "14390", "14391", "14401", "14393", "14394", "14395", "14396", "14397",
	"14398", "14726", "15711", "15787", "15272", "14920", "14631", "15252", "14372",
	"15756", "15753", "15754", "14366", "14367",
}

var statusFieldPrefixes = []string{
	"agreement_plan_communication_",
	"agreement_plan_gateway_",
	"agreement_plan_intrusion_",
	"agreement_plan_fire_",
	"agreement_plan_environmental_",
	"agreement_plan_integratedsystems_",
	"agreement_plan_response_",
	"agreement_plan_verify_",
	"agreement_plan_trespass_",
}

// Assemble builds the flat merge-field map the rendering service binds
// to by exact field name. It is pure: the same bundle, grouping, number
// and clock always produce the same map.
func Assemble(bundle *models.Bundle, grouped map[Category][]models.Device, certNumber, brokerEmail, requestorName string, now time.Time) models.FieldMap {
	site := bundle.Site
	customer := bundle.Customer
	agreement := bundle.Agreement
	system := bundle.System

	siteName := site["mas_site_name"]
	if siteName == "" {
		siteName = site["name"]
	}

	fields := models.FieldMap{
		"provider_name":    providerName,
		"provider_address": providerAddress,
		"provider_city":    providerCity,
		"provider_state":   providerState,
		"provider_zip":     providerZip,
		"provider_phone":   providerPhone,

		"CERTIFICATE_Number":    certNumber,
		"CERTIFICATE_TimeStamp": timestampPhrase(now.In(pacific)),

		"HSID":        agreement["hs_object_id"],
		"HSID_Site":   site["hs_object_id"],
		"HSID_System": system["hs_object_id"],

		"SITE_Name":       siteName,
		"SITE_Address1":   site["address"],
		"SITE_Address2":   site["address2"],
		"SITE_City":       site["city"],
		"SITE_Province":   site["state"],
		"SITE_PostalCode": TransformAt(site["zip"], TransformUpper, now),
		"SITE_Type":       site["site_type"],

		"AGREEMENT_Customer_Name":       TransformAt([]string{customer["firstname"], customer["lastname"]}, TransformConcatSpace, now),
		"AGREEMENT_Customer_Address1":   customer["address"],
		"AGREEMENT_Customer_City":       customer["city"],
		"AGREEMENT_Customer_Province":   customer["state"],
		"AGREEMENT_Customer_PostalCode": TransformAt(customer["zip"], TransformUpper, now),

		"AGREEMENT_EffectiveDate":      TransformAt(agreement["agreement_plan_effectivedate"], TransformDatetime, now),
		"AGREEMENT_Plan_ItemNumber":    TransformAt(agreement["agreement_plan_name"], TransformItemNumber, now),
		"AGREEMENT_Plan_Supervision":   TransformAt(agreement["agreement_plan_supervision"], TransformItemNumber, now),
		"AGREEMENT_Response_Guarantee": agreement["agreement_plan_response_guarantee"],

		"Path_Primary":   TransformAt(system["communication_path_1"], TransformCommPathLabel, now),
		"Path_Secondary": TransformAt(system["communication_path_2"], TransformCommPathLabel, now),
		"Path_Phrase":    TransformAt([]string{system["communication_path_1"], system["communication_path_2"]}, TransformCommPathPhrase, now),

		"AGREEMENT_Partitions_Included":   agreement["agreement_partitions_included"],
		"AGREEMENT_Partitions_Additional": agreement["agreement_partitions_additional"],
		"AGREEMENT_Partitions_Total":      agreement["agreement_partitions_total"],

		"Integrations_Gate_Fire": system["integrations_gate_fire"],

		"CERTIFICATE_Recipient_Name":    requestorName,
		"CERTIFICATE_Recipient_Company": brokerEmail,
	}

	for _, suffix := range statusFieldSuffixes {
		for _, prefix := range statusFieldPrefixes {
			if value, ok := agreement[prefix+suffix]; ok {
				fields["AGREEMENT_Status_"+suffix] = value
				break
			}
		}
	}

	for _, cat := range Categories() {
		devices := grouped[cat]
		zones := make([]models.DeviceZone, 0, len(devices))
		for _, device := range devices {
			zone := device.ADCDeviceID
			if zone == "" {
				zone = device.Zone
			}
			zones = append(zones, models.DeviceZone{
				Name: DisplayName(device),
				Zone: zone,
			})
		}
		fields[fmt.Sprintf("Zones_%s", cat)] = zones
		fields[fmt.Sprintf("Count_%s", cat)] = len(zones)
	}

	return fields
}
