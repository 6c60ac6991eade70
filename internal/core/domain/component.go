package domain

const (
	COMPONENT_LIGHT         = "light"
	COMPONENT_COVER         = "cover"
	COMPONENT_SWITCH        = "switch"
	COMPONENT_LOCK          = "lock"
	COMPONENT_SENSOR        = "sensor"
	COMPONENT_BINARY_SENSOR = "binary_sensor"
)

type Device struct {
	Id            string
	Name          string
	Version       string
	Model         string
	Manufacturer  string
	ViaDevice     string
	SuggestedArea string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // connectivity, timestamp
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}
