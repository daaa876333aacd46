package blk

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/PinYu1618/snail/kernel/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, BlockSize)
}

func TestRAMDisk(t *testing.T) {
	d := NewRAMDisk(4)
	buf := make([]byte, BlockSize)
	require.Equal(t, errNotAttached, d.ReadBlock(0, buf))

	var out bytes.Buffer
	require.Nil(t, d.DriverInit(&out))
	assert.Equal(t, "4 blocks (2.0 KiB)\n", out.String())

	require.Nil(t, d.WriteBlock(3, block(0xaa)))
	require.Nil(t, d.ReadBlock(3, buf))
	assert.Equal(t, block(0xaa), buf)

	assert.Equal(t, errBlockOutOfRange, d.ReadBlock(4, buf))
	assert.Equal(t, errBlockOutOfRange, d.WriteBlock(-1, buf))
	assert.Equal(t, errBadBufferSize, d.WriteBlock(0, buf[:10]))
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	d := NewFileDisk(path, 8)
	require.Nil(t, d.DriverInit(&bytes.Buffer{}))
	require.Nil(t, d.WriteBlock(7, block(0x5a)))
	require.NoError(t, d.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8*BlockSize), info.Size())

	// the image size wins over the requested block count
	d = NewFileDisk(path, 2)
	require.NoError(t, d.Open())
	defer d.Close()
	assert.Equal(t, 8, d.Blocks())

	buf := make([]byte, BlockSize)
	require.Nil(t, d.ReadBlock(7, buf))
	assert.Equal(t, block(0x5a), buf)
}

func TestFileDiskErrors(t *testing.T) {
	t.Run("empty image without size", func(t *testing.T) {
		d := NewFileDisk(filepath.Join(t.TempDir(), "empty.img"), 0)
		assert.Error(t, d.Open())
	})

	t.Run("unreachable path", func(t *testing.T) {
		d := NewFileDisk(filepath.Join(t.TempDir(), "missing", "disk.img"), 4)
		var out bytes.Buffer
		assert.Equal(t, errDeviceIO, d.DriverInit(&out))
		assert.Contains(t, out.String(), "open disk image")
	})

	t.Run("closed disk", func(t *testing.T) {
		d := NewFileDisk("unused", 1)
		assert.Equal(t, errNotAttached, d.WriteBlock(0, block(0)))
		assert.NoError(t, d.Close())
	})
}

func TestProbeForDisk(t *testing.T) {
	board := config.Default()
	drv := probeForDisk(board)
	if assert.IsType(t, &RAMDisk{}, drv) {
		assert.Equal(t, board.Disk.Blocks, drv.(*RAMDisk).Blocks())
	}

	board.Disk.Image = "apps.img"
	assert.IsType(t, &FileDisk{}, probeForDisk(board))

	board.Disk = config.Disk{}
	assert.Nil(t, probeForDisk(board))
}

func TestCacheWriteBack(t *testing.T) {
	d := NewRAMDisk(8)
	require.Nil(t, d.DriverInit(&bytes.Buffer{}))
	require.Nil(t, d.WriteBlock(1, block(1)))

	c := NewCache(d, 2)
	p := make([]byte, 4)
	require.Nil(t, c.ReadAt(1, 10, p))
	assert.Equal(t, []byte{1, 1, 1, 1}, p)

	require.Nil(t, c.WriteAt(2, 0, []byte("snail")))
	raw := make([]byte, BlockSize)
	require.Nil(t, d.ReadBlock(2, raw))
	assert.Equal(t, block(0), raw, "writes stay in the cache until eviction or sync")

	// touching blocks 1 and 3 evicts block 2 which gets written back
	require.Nil(t, c.ReadAt(1, 0, p))
	require.Nil(t, c.ReadAt(3, 0, p))
	assert.Equal(t, 2, c.Len())
	require.Nil(t, d.ReadBlock(2, raw))
	assert.Equal(t, []byte("snail"), raw[:5])

	b, err := c.Get(3)
	require.Nil(t, err)
	b.Data()[0] = 9
	b.MarkDirty()
	assert.True(t, b.Dirty())
	require.Nil(t, c.Sync())
	assert.False(t, b.Dirty())
	require.Nil(t, d.ReadBlock(3, raw))
	assert.Equal(t, byte(9), raw[0])

	_, err = c.Get(8)
	assert.Equal(t, errBlockOutOfRange, err)
}
