package device

import (
	"io"
	"sort"
	"testing"

	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDriver string

func (d nopDriver) DriverName() string                    { return string(d) }
func (nopDriver) DriverVersion() (uint16, uint16, uint16) { return 1, 0, 0 }
func (nopDriver) DriverInit(io.Writer) *kernel.Error      { return nil }

func TestDriverInfoListSorting(t *testing.T) {
	defer func() {
		registeredDrivers = nil
	}()

	origlist := []*DriverInfo{
		{Order: DetectOrderStorage},
		{Order: DetectOrderLast},
		{Order: DetectOrderBeforeStorage},
		{Order: DetectOrderEarly},
	}
	for _, drv := range origlist {
		RegisterDriver(drv)
	}

	registeredList := DriverList()
	require.Len(t, registeredList, len(origlist))

	sort.Sort(registeredList)
	for i, exp := range []int{3, 2, 0, 1} {
		assert.Same(t, origlist[exp], registeredList[i], "sorted entry %d", i)
	}
}

func TestProbeSeesBoard(t *testing.T) {
	defer func() {
		registeredDrivers = nil
	}()

	RegisterDriver(&DriverInfo{
		Order: DetectOrderStorage,
		Probe: func(board *config.Board) Driver {
			if board.Disk.Blocks == 0 {
				return nil
			}
			return nopDriver("disk")
		},
	})

	board := config.Default()
	probe := DriverList()[0].Probe
	drv := probe(board)
	require.NotNil(t, drv)
	assert.Equal(t, "disk", drv.DriverName())

	board.Disk.Blocks = 0
	assert.Nil(t, probe(board))
}
