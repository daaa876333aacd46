// Package blk provides the block devices that back the kernel filesystem and
// a write-back cache in front of them.
package blk

import "github.com/PinYu1618/snail/kernel"

// BlockSize is the size in bytes of every block exchanged with a Device.
const BlockSize = 512

var (
	errBlockOutOfRange = &kernel.Error{Module: "blk", Message: "block id outside of device"}
	errBadBufferSize   = &kernel.Error{Module: "blk", Message: "buffer is not one block long"}
	errDeviceIO        = &kernel.Error{Module: "blk", Message: "device i/o failed"}
	errNotAttached     = &kernel.Error{Module: "blk", Message: "device has not been initialized"}
)

// Device is implemented by block addressable storage.
type Device interface {
	// Blocks returns the number of blocks on the device.
	Blocks() int

	// ReadBlock fills buf, which must be BlockSize long, with the
	// contents of block id.
	ReadBlock(id int, buf []byte) *kernel.Error

	// WriteBlock stores buf, which must be BlockSize long, into block id.
	WriteBlock(id int, buf []byte) *kernel.Error
}

func checkRequest(dev Device, id int, buf []byte) *kernel.Error {
	if len(buf) != BlockSize {
		return errBadBufferSize
	}
	if id < 0 || id >= dev.Blocks() {
		return errBlockOutOfRange
	}
	return nil
}
