package blk

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/kfmt"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheBlocks is the capacity used when NewCache is given a
// non-positive size.
const DefaultCacheBlocks = 16

// Block is a cached copy of one device block.
type Block struct {
	id    int
	data  [BlockSize]byte
	dirty bool
}

// ID returns the device block id.
func (b *Block) ID() int { return b.id }

// Data returns the block contents. Callers that modify them must call
// MarkDirty.
func (b *Block) Data() []byte { return b.data[:] }

// MarkDirty schedules the block to be written back to the device.
func (b *Block) MarkDirty() { b.dirty = true }

// Dirty returns true if the block has modifications not yet on the device.
func (b *Block) Dirty() bool { return b.dirty }

// Cache is a write-back LRU cache of device blocks. Evicted dirty blocks are
// written to the device.
type Cache struct {
	dev    Device
	blocks *lru.Cache[int, *Block]
}

// NewCache returns a cache holding up to capacity blocks of dev.
func NewCache(dev Device, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheBlocks
	}

	c := &Cache{dev: dev}
	blocks, err := lru.NewWithEvict[int, *Block](capacity, c.onEvict)
	if err != nil {
		panic(err)
	}
	c.blocks = blocks
	return c
}

func (c *Cache) onEvict(id int, b *Block) {
	if err := c.writeBack(b); err != nil {
		kfmt.Errorf("blk", "lost write to block %d: %s", id, err.Message)
	}
}

func (c *Cache) writeBack(b *Block) *kernel.Error {
	if !b.dirty {
		return nil
	}
	if err := c.dev.WriteBlock(b.id, b.data[:]); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// Device returns the cached device.
func (c *Cache) Device() Device { return c.dev }

// Get returns the cached copy of block id, reading it from the device on a
// miss.
func (c *Cache) Get(id int) (*Block, *kernel.Error) {
	if b, ok := c.blocks.Get(id); ok {
		return b, nil
	}

	b := &Block{id: id}
	if err := c.dev.ReadBlock(id, b.data[:]); err != nil {
		return nil, err
	}
	c.blocks.Add(id, b)
	return b, nil
}

// ReadAt copies len(p) bytes starting at offset off of block id into p.
func (c *Cache) ReadAt(id, off int, p []byte) *kernel.Error {
	b, err := c.Get(id)
	if err != nil {
		return err
	}
	copy(p, b.data[off:])
	return nil
}

// WriteAt copies p into block id starting at offset off.
func (c *Cache) WriteAt(id, off int, p []byte) *kernel.Error {
	b, err := c.Get(id)
	if err != nil {
		return err
	}
	copy(b.data[off:], p)
	b.dirty = true
	return nil
}

// Len returns the number of cached blocks.
func (c *Cache) Len() int { return c.blocks.Len() }

// Sync writes every dirty block back to the device.
func (c *Cache) Sync() *kernel.Error {
	for _, id := range c.blocks.Keys() {
		b, ok := c.blocks.Peek(id)
		if !ok {
			continue
		}
		if err := c.writeBack(b); err != nil {
			return err
		}
	}
	return nil
}
