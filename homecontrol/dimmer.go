package homecontrol

import (
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
)

// Dimmer is a lightbulb with brightness, for switchMultilevel devices
type Dimmer struct {
	*accessory.Accessory
	Lightbulb *DimmerSvc
}

func NewDimmer(info accessory.Info) *Dimmer {
	acc := Dimmer{}
	acc.Accessory = accessory.New(info, accessory.TypeLightbulb)

	acc.Lightbulb = NewDimmerSvc()
	acc.AddService(acc.Lightbulb.Service)

	return &acc
}

type DimmerSvc struct {
	*service.Service

	On         *characteristic.On
	Brightness *characteristic.Brightness
}

func NewDimmerSvc() *DimmerSvc {
	svc := DimmerSvc{}
	svc.Service = service.New(service.TypeLightbulb)

	svc.On = characteristic.NewOn()
	svc.AddCharacteristic(svc.On.Characteristic)

	svc.Brightness = characteristic.NewBrightness()
	svc.AddCharacteristic(svc.Brightness.Characteristic)

	return &svc
}

// WeatherSensor is a temperature sensor with humidity, one per OWM city
type WeatherSensor struct {
	*accessory.Accessory

	TemperatureSensor *service.TemperatureSensor
	HumiditySensor    *service.HumiditySensor
}

func NewWeatherSensor(info accessory.Info) *WeatherSensor {
	acc := WeatherSensor{}
	acc.Accessory = accessory.New(info, accessory.TypeSensor)

	acc.TemperatureSensor = service.NewTemperatureSensor()
	acc.TemperatureSensor.CurrentTemperature.SetMinValue(-100)
	acc.Accessory.AddService(acc.TemperatureSensor.Service)

	acc.HumiditySensor = service.NewHumiditySensor()
	acc.Accessory.AddService(acc.HumiditySensor.Service)

	return &acc
}

// PresenceSensor reports whether a host answers
type PresenceSensor struct {
	*accessory.Accessory
	ContactSensor *service.ContactSensor
}

func NewPresenceSensor(info accessory.Info) *PresenceSensor {
	acc := PresenceSensor{}
	acc.Accessory = accessory.New(info, accessory.TypeSensor)
	acc.ContactSensor = service.NewContactSensor()
	acc.AddService(acc.ContactSensor.Service)

	return &acc
}
