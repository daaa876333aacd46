// Package fs implements the files a task reaches through its descriptor
// table: the console streams, pipes and files of the mounted directory.
package fs

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
)

var (
	errNotReadable = &kernel.Error{Module: "fs", Message: "file is not readable"}
	errNotWritable = &kernel.Error{Module: "fs", Message: "file is not writable"}
	errOverRelease = &kernel.Error{Module: "fs", Message: "shared file closed more times than opened"}
)

// File is implemented by everything a file descriptor can refer to.
type File interface {
	// Read fills buf with data from the file and returns the number of
	// bytes read. Zero means end of file.
	Read(buf vmm.UserBuffer) int

	// Write stores the contents of buf and returns the number of bytes
	// written.
	Write(buf vmm.UserBuffer) int

	Readable() bool
	Writable() bool
}

// closer is implemented by files that must observe their last close.
type closer interface {
	Close()
}

// Inode is a file of the mounted directory.
type Inode interface {
	// ReadAt copies file data starting at off into buf and returns the
	// number of bytes copied.
	ReadAt(off int, buf []byte) int

	// WriteAt stores buf at off, growing the file as needed, and returns
	// the number of bytes written.
	WriteAt(off int, buf []byte) int

	// Size returns the file length in bytes.
	Size() int

	// Clear truncates the file to zero length.
	Clear()
}

// Dir is a flat directory of inodes.
type Dir interface {
	Find(name string) (Inode, bool)
	Create(name string) (Inode, bool)
	Names() []string
}

// Shared is an open file referenced by one or more descriptors, possibly
// in different tasks. The file observes its close once the last reference
// is dropped.
type Shared struct {
	file File
	refs int
}

// NewShared returns a reference to f.
func NewShared(f File) *Shared {
	return &Shared{file: f, refs: 1}
}

// File returns the referenced file.
func (s *Shared) File() File { return s.file }

// Refs returns the number of live references.
func (s *Shared) Refs() int { return s.refs }

// Dup adds a reference and returns s.
func (s *Shared) Dup() *Shared {
	s.refs++
	return s
}

// Close drops a reference.
func (s *Shared) Close() {
	if s.refs <= 0 {
		panic(errOverRelease)
	}
	s.refs--
	if s.refs == 0 {
		if c, ok := s.file.(closer); ok {
			c.Close()
		}
	}
}
