// Package ramfs implements a flat directory whose file contents are stored
// in device blocks reached through the block cache. Directory and inode
// metadata live in memory only, so the contents are lost once the FS value
// goes away even if the device persists.
package ramfs

import (
	"sort"

	"github.com/PinYu1618/snail/device/blk"
	"github.com/PinYu1618/snail/kernel/fs"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// FS is a flat directory backed by a block device.
type FS struct {
	cache *blk.Cache

	// block allocator state; recycled ids are reused first
	next     int
	recycled []int

	files map[string]*Inode
}

// New returns an empty filesystem over the cached device.
func New(cache *blk.Cache) *FS {
	return &FS{cache: cache, files: make(map[string]*Inode)}
}

func (f *FS) allocBlock() (int, bool) {
	if n := len(f.recycled); n != 0 {
		id := f.recycled[n-1]
		f.recycled = f.recycled[:n-1]
		return id, true
	}
	if f.next >= f.cache.Device().Blocks() {
		return 0, false
	}
	f.next++
	return f.next - 1, true
}

func (f *FS) freeBlock(id int) {
	f.recycled = append(f.recycled, id)
}

// FreeBlocks returns the number of blocks that can still be allocated.
func (f *FS) FreeBlocks() int {
	return f.cache.Device().Blocks() - f.next + len(f.recycled)
}

// Find implements fs.Dir.
func (f *FS) Find(name string) (fs.Inode, bool) {
	inode, ok := f.files[name]
	if !ok {
		return nil, false
	}
	return inode, true
}

// Create implements fs.Dir. Creating an existing name returns the existing
// inode.
func (f *FS) Create(name string) (fs.Inode, bool) {
	if name == "" {
		return nil, false
	}
	if inode, ok := f.files[name]; ok {
		return inode, true
	}
	inode := &Inode{fs: f}
	f.files[name] = inode
	return inode, true
}

// Names implements fs.Dir.
func (f *FS) Names() []string {
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import stores data as the file name, replacing any previous contents.
func (f *FS) Import(name string, data []byte) error {
	inode, ok := f.Create(name)
	if !ok {
		return errors.Errorf("cannot create %q", name)
	}
	inode.Clear()

	if n := inode.WriteAt(0, data); n != len(data) {
		return errors.Errorf("import %s: wrote %d of %d bytes, %d blocks free",
			name, n, len(data), f.FreeBlocks())
	}
	kfmt.Debugf("ramfs", "imported %s (%s)", name, humanize.IBytes(uint64(len(data))))
	return nil
}

// Sync flushes cached file data to the device.
func (f *FS) Sync() error {
	if err := f.cache.Sync(); err != nil {
		return errors.Wrap(err, "sync block cache")
	}
	return nil
}

// Inode is a file of an FS.
type Inode struct {
	fs     *FS
	size   int
	blocks []int
}

// Size implements fs.Inode.
func (i *Inode) Size() int { return i.size }

// ReadAt implements fs.Inode.
func (i *Inode) ReadAt(off int, buf []byte) int {
	if off < 0 || off >= i.size {
		return 0
	}

	end := min(off+len(buf), i.size)
	var done int
	for pos := off; pos < end; {
		idx, inBlock := pos/blk.BlockSize, pos%blk.BlockSize
		n := min(blk.BlockSize-inBlock, end-pos)
		if err := i.fs.cache.ReadAt(i.blocks[idx], inBlock, buf[done:done+n]); err != nil {
			kfmt.Errorf("ramfs", "read block %d: %s", i.blocks[idx], err.Message)
			break
		}
		pos += n
		done += n
	}
	return done
}

// WriteAt implements fs.Inode. Writes stop early when the device runs out of
// blocks.
func (i *Inode) WriteAt(off int, buf []byte) int {
	if off < 0 {
		return 0
	}

	end := off + len(buf)
	for len(i.blocks)*blk.BlockSize < end {
		id, ok := i.fs.allocBlock()
		if !ok {
			end = len(i.blocks) * blk.BlockSize
			break
		}
		i.blocks = append(i.blocks, id)
		if err := i.fs.cache.WriteAt(id, 0, zeroBlock[:]); err != nil {
			kfmt.Errorf("ramfs", "zero block %d: %s", id, err.Message)
		}
	}

	var done int
	for pos := off; pos < end; {
		idx, inBlock := pos/blk.BlockSize, pos%blk.BlockSize
		n := min(blk.BlockSize-inBlock, end-pos)
		if err := i.fs.cache.WriteAt(i.blocks[idx], inBlock, buf[done:done+n]); err != nil {
			kfmt.Errorf("ramfs", "write block %d: %s", i.blocks[idx], err.Message)
			break
		}
		pos += n
		done += n
	}

	if off+done > i.size {
		i.size = off + done
	}
	return done
}

// Clear implements fs.Inode.
func (i *Inode) Clear() {
	for _, id := range i.blocks {
		i.fs.freeBlock(id)
	}
	i.blocks = nil
	i.size = 0
}

var zeroBlock [blk.BlockSize]byte
