package models

// Bundle holds the raw property bags fetched from HubSpot for one
// certificate request. Entities whose read failed are present but empty;
// validation decides whether the bundle is usable.
type Bundle struct {
	Agreement map[string]string
	System    map[string]string
	Site      map[string]string
	Customer  map[string]string
	Devices   []Device
}

// Device is one piece of monitored equipment. Devices carry no stored
// category; the classifier infers one from the type/subtype/sensor-group
// codes.
type Device struct {
	Description      string
	Zone             string
	ADCDeviceID      string
	EquipmentType    string
	EquipmentSubtype string
	SensorGroup      string
	Partition        string
	InstallationDate string
}

// HubSpot device property names (alarm.com integration schema).
const (
	PropDeviceDescription = "alarm_com_description"
	PropDeviceZone        = "zone__"
	PropDeviceType        = "alarm_com_equipment_type"
	PropDeviceSubtype     = "equipment_subtype"
	PropDeviceSensorGroup = "alarm_com_sensor_group"
	PropDevicePartition   = "alarm_com_partition"
	PropDeviceADCID       = "adc_deviceid"
	PropDeviceInstallDate = "installation_date"
)

// DeviceFromProperties maps a HubSpot property bag to a Device.
func DeviceFromProperties(props map[string]string) Device {
	return Device{
		Description:      props[PropDeviceDescription],
		Zone:             props[PropDeviceZone],
		ADCDeviceID:      props[PropDeviceADCID],
		EquipmentType:    props[PropDeviceType],
		EquipmentSubtype: props[PropDeviceSubtype],
		SensorGroup:      props[PropDeviceSensorGroup],
		Partition:        props[PropDevicePartition],
		InstallationDate: props[PropDeviceInstallDate],
	}
}

// DeviceZone is one device entry in a Zones_{Category} merge field.
type DeviceZone struct {
	Name string `json:"name"`
	Zone string `json:"zone"`
}

// FieldMap is the assembled merge-field map sent to the rendering
// service. Values are strings, ints (counts) or []DeviceZone (zones).
// It is produced once by the assembler and never mutated afterwards.
type FieldMap map[string]any
