package blk

import (
	"io"

	"github.com/PinYu1618/snail/device"
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/dustin/go-humanize"
)

// RAMDisk is a volatile block device kept in host memory.
type RAMDisk struct {
	blocks int
	data   []byte
}

// NewRAMDisk returns an unformatted disk with the given number of blocks.
// The storage is allocated by DriverInit.
func NewRAMDisk(blocks int) *RAMDisk {
	return &RAMDisk{blocks: blocks}
}

// Blocks implements Device.
func (d *RAMDisk) Blocks() int { return d.blocks }

// ReadBlock implements Device.
func (d *RAMDisk) ReadBlock(id int, buf []byte) *kernel.Error {
	if d.data == nil {
		return errNotAttached
	}
	if err := checkRequest(d, id, buf); err != nil {
		return err
	}
	copy(buf, d.data[id*BlockSize:])
	return nil
}

// WriteBlock implements Device.
func (d *RAMDisk) WriteBlock(id int, buf []byte) *kernel.Error {
	if d.data == nil {
		return errNotAttached
	}
	if err := checkRequest(d, id, buf); err != nil {
		return err
	}
	copy(d.data[id*BlockSize:], buf)
	return nil
}

// DriverName returns the name of the driver.
func (d *RAMDisk) DriverName() string { return "ramdisk" }

// DriverVersion returns the driver version.
func (d *RAMDisk) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit allocates the disk storage.
func (d *RAMDisk) DriverInit(w io.Writer) *kernel.Error {
	d.data = make([]byte, d.blocks*BlockSize)
	kfmt.Fprintf(w, "%d blocks (%s)\n", d.blocks, humanize.IBytes(uint64(len(d.data))))
	return nil
}

func probeForDisk(board *config.Board) device.Driver {
	if board.Disk.Image != "" {
		return NewFileDisk(board.Disk.Image, board.Disk.Blocks)
	}
	if board.Disk.Blocks <= 0 {
		return nil
	}
	return NewRAMDisk(board.Disk.Blocks)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderStorage,
		Probe: probeForDisk,
	})
}
