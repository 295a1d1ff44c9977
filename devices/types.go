package devices

// Type is the device type tag reported by the registry
type Type string

// the device types known to the rule engine, named as the controller names them
const (
	SwitchBinary     Type = "switchBinary"
	SwitchMultilevel Type = "switchMultilevel"
	SwitchRGBW       Type = "switchRGBW"
	SwitchControl    Type = "switchControl"
	Thermostat       Type = "thermostat"
	ToggleButton     Type = "toggleButton"
	Scene            Type = "scene"
	SensorBinary     Type = "sensorBinary"
	SensorMultilevel Type = "sensorMultilevel"
	Doorlock         Type = "doorlock"
	Battery          Type = "battery"
)

// MetricLevel is the metric every device reports its primary state on
const MetricLevel = "metrics:level"

// MetricColor carries the last color applied to a color-bearing device
const MetricColor = "metrics:color"

// MetricHumidity is reported by weather sensors next to the temperature level
const MetricHumidity = "metrics:humidity"

// Class is the closed set of behaviours the rule engine switches on
type Class int

const (
	ClassOther Class = iota
	ClassLevelBearing
	ClassThermostat
	ClassColorBearing
	ClassToggleButton
	ClassScene
)

var classNames = map[Class]string{
	ClassOther:        "other",
	ClassLevelBearing: "level",
	ClassThermostat:   "thermostat",
	ClassColorBearing: "color",
	ClassToggleButton: "toggle",
	ClassScene:        "scene",
}

func (c Class) String() string {
	return classNames[c]
}

// Class resolves a type tag to its class
func (t Type) Class() Class {
	switch t {
	case SwitchMultilevel:
		return ClassLevelBearing
	case Thermostat:
		return ClassThermostat
	case SwitchRGBW:
		return ClassColorBearing
	case ToggleButton:
		return ClassToggleButton
	case Scene:
		return ClassScene
	default:
		return ClassOther
	}
}

// Commandable reports whether the class accepts on/off and exact commands
func (c Class) Commandable() bool {
	return c == ClassLevelBearing || c == ClassThermostat || c == ClassColorBearing
}
