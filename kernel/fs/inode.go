package fs

import (
	"io"

	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/sync"
)

// OpenFlags select the access mode of OpenFile and what happens to an
// existing file.
type OpenFlags uint32

const (
	OpenRDONLY OpenFlags = 0
	OpenWRONLY OpenFlags = 1 << 0
	OpenRDWR   OpenFlags = 1 << 1
	OpenCREATE OpenFlags = 1 << 9
	OpenTRUNC  OpenFlags = 1 << 10
)

// ReadWrite returns the access mode encoded in the flags. Flags are not
// validated: anything other than a lone RDONLY or WRONLY opens the file
// for reading and writing.
func (f OpenFlags) ReadWrite() (readable, writable bool) {
	switch {
	case f == 0:
		return true, false
	case f&OpenWRONLY != 0:
		return false, true
	default:
		return true, true
	}
}

// root is the directory OpenFile resolves names in.
var root Dir

// Mount makes d the directory used by OpenFile and ListApps.
func Mount(d Dir) {
	root = d
}

type osInodeInner struct {
	offset int
	inode  Inode
}

// OSInode is a file of the mounted directory opened by a task. It tracks
// the task's position in the file.
type OSInode struct {
	readable bool
	writable bool
	inner    *sync.UPSafeCell[osInodeInner]
}

// NewOSInode opens inode with the given access mode.
func NewOSInode(readable, writable bool, inode Inode) *OSInode {
	return &OSInode{
		readable: readable,
		writable: writable,
		inner:    sync.NewUPSafeCell(osInodeInner{inode: inode}),
	}
}

// Read implements File.
func (f *OSInode) Read(buf vmm.UserBuffer) int {
	inner := f.inner.Exclusive()
	defer f.inner.Release()

	var total int
	for _, b := range buf.Buffers {
		n := inner.inode.ReadAt(inner.offset, b)
		if n == 0 {
			break
		}
		inner.offset += n
		total += n
	}
	return total
}

// Write implements File.
func (f *OSInode) Write(buf vmm.UserBuffer) int {
	inner := f.inner.Exclusive()
	defer f.inner.Release()

	var total int
	for _, b := range buf.Buffers {
		n := inner.inode.WriteAt(inner.offset, b)
		inner.offset += n
		total += n
	}
	return total
}

// ReadAll returns the file contents from the current offset to the end.
func (f *OSInode) ReadAll() []byte {
	inner := f.inner.Exclusive()
	defer f.inner.Release()

	out := make([]byte, 0, max(inner.inode.Size()-inner.offset, 0))
	var chunk [512]byte
	for {
		n := inner.inode.ReadAt(inner.offset, chunk[:])
		if n == 0 {
			return out
		}
		inner.offset += n
		out = append(out, chunk[:n]...)
	}
}

func (f *OSInode) Readable() bool { return f.readable }
func (f *OSInode) Writable() bool { return f.writable }

// OpenFile opens name in the mounted directory. With OpenCREATE a missing
// file is created and an existing one truncated; OpenTRUNC truncates an
// existing file.
func OpenFile(name string, flags OpenFlags) (*OSInode, bool) {
	if root == nil {
		return nil, false
	}

	readable, writable := flags.ReadWrite()
	inode, found := root.Find(name)
	switch {
	case found && flags&(OpenCREATE|OpenTRUNC) != 0:
		inode.Clear()
	case !found && flags&OpenCREATE != 0:
		if inode, found = root.Create(name); !found {
			return nil, false
		}
	case !found:
		return nil, false
	}

	return NewOSInode(readable, writable, inode), true
}

// ListApps prints the names of the files in the mounted directory.
func ListApps(w io.Writer) {
	kfmt.Fprintf(w, "/**** APPS ****\n")
	if root != nil {
		for _, name := range root.Names() {
			kfmt.Fprintf(w, "%s\n", name)
		}
	}
	kfmt.Fprintf(w, "**************/\n")
}
