package tty

import (
	"github.com/PinYu1618/snail/device"
	"github.com/PinYu1618/snail/kernel/config"
)

// probeForSerial returns the firmware console terminal. Every board has one.
func probeForSerial(_ *config.Board) device.Driver {
	return NewSerial(DefaultTabWidth, DefaultScrollback)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForSerial,
	})
}
