// Package hal probes the board for devices and keeps track of the ones the
// kernel talks to.
package hal

import (
	"bytes"
	"sort"

	"github.com/PinYu1618/snail/device"
	"github.com/PinYu1618/snail/device/blk"
	"github.com/PinYu1618/snail/device/tty"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/kfmt"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeTTY   tty.Device
	activeBlock blk.Device

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// ActiveTTY returns the currently active TTY
func ActiveTTY() tty.Device {
	return devices.activeTTY
}

// ActiveBlockDevice returns the block device backing the filesystem or nil
// if the board has none.
func ActiveBlockDevice() blk.Device {
	return devices.activeBlock
}

// ActiveDrivers returns the drivers initialized by DetectHardware.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers
}

// DetectHardware probes the board for hardware devices and initializes the
// appropriate drivers.
func DetectHardware(board *config.Board) {
	devices = managedDevices{}

	// Get driver list and sort by detection priority
	drivers := append(device.DriverInfoList(nil), device.DriverList()...)
	sort.Stable(drivers)

	probe(board, drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(board *config.Board, driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

	for _, info := range driverInfoList {
		drv := info.Probe(board)
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(info, drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)

		// the first tty replaces the early buffer for later drivers
		w.Sink = kfmt.GetOutputSink()
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(_ *device.DriverInfo, drv device.Driver) {
	switch drvImpl := drv.(type) {
	case tty.Device:
		if devices.activeTTY != nil {
			return
		}

		devices.activeTTY = drvImpl
		drvImpl.SetState(tty.StateActive)
		kfmt.SetOutputSink(drvImpl)
	case blk.Device:
		if devices.activeBlock != nil {
			return
		}
		devices.activeBlock = drvImpl
	}
}
