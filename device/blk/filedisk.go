package blk

import (
	"io"
	"os"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// FileDisk is a block device backed by a host file image. The image
// survives across boots.
type FileDisk struct {
	path   string
	blocks int
	f      *os.File
}

// NewFileDisk returns a disk backed by the image at path. If the image does
// not exist, DriverInit creates it with the given number of blocks.
func NewFileDisk(path string, blocks int) *FileDisk {
	return &FileDisk{path: path, blocks: blocks}
}

// Open opens or creates the image file.
func (d *FileDisk) Open() error {
	f, err := os.OpenFile(d.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, "open disk image")
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "stat disk image %s", d.path)
	}

	switch {
	case info.Size() >= BlockSize:
		d.blocks = int(info.Size() / BlockSize)
	case d.blocks > 0:
		if err := f.Truncate(int64(d.blocks) * BlockSize); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "size disk image %s", d.path)
		}
	default:
		_ = f.Close()
		return errors.Errorf("disk image %s is empty", d.path)
	}

	d.f = f
	return nil
}

// Close releases the image file.
func (d *FileDisk) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return errors.Wrap(err, "close disk image")
}

// Blocks implements Device.
func (d *FileDisk) Blocks() int { return d.blocks }

// ReadBlock implements Device.
func (d *FileDisk) ReadBlock(id int, buf []byte) *kernel.Error {
	if d.f == nil {
		return errNotAttached
	}
	if err := checkRequest(d, id, buf); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(buf, int64(id)*BlockSize); err != nil {
		return errDeviceIO
	}
	return nil
}

// WriteBlock implements Device.
func (d *FileDisk) WriteBlock(id int, buf []byte) *kernel.Error {
	if d.f == nil {
		return errNotAttached
	}
	if err := checkRequest(d, id, buf); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(buf, int64(id)*BlockSize); err != nil {
		return errDeviceIO
	}
	return nil
}

// DriverName returns the name of the driver.
func (d *FileDisk) DriverName() string { return "filedisk" }

// DriverVersion returns the driver version.
func (d *FileDisk) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit opens the image file.
func (d *FileDisk) DriverInit(w io.Writer) *kernel.Error {
	if err := d.Open(); err != nil {
		kfmt.Fprintf(w, "%v\n", err)
		return errDeviceIO
	}
	kfmt.Fprintf(w, "%s: %d blocks (%s)\n", d.path, d.blocks, humanize.IBytes(uint64(d.blocks)*BlockSize))
	return nil
}
