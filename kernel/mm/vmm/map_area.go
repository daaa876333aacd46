package vmm

import (
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/mm"
)

var errCopyToIdentical = &kernel.Error{Module: "vmm", Message: "cannot copy data into an identical mapping"}

// MapType selects how the pages of a MapArea are backed.
type MapType uint8

const (
	// MapIdentical maps every virtual page to the physical page with the
	// same number.
	MapIdentical MapType = iota

	// MapFramed backs every virtual page with a freshly allocated frame
	// owned by the area.
	MapFramed
)

// MapPermission is the subset of page table flags a MapArea can request.
type MapPermission uint8

// The MapPermission bits share their positions with the matching
// PageTableEntryFlag values.
const (
	PermRead    = MapPermission(FlagRead)
	PermWrite   = MapPermission(FlagWrite)
	PermExecute = MapPermission(FlagExecute)
	PermUser    = MapPermission(FlagUser)
)

// MapArea is a contiguous range of virtual pages mapped with the same
// permissions.
type MapArea struct {
	vpns   mm.VPNRange
	frames map[mm.VirtPageNum]*mm.Frame
	kind   MapType
	perm   MapPermission
}

// NewMapArea returns an area covering the pages that overlap [start, end).
func NewMapArea(start, end mm.VirtAddr, kind MapType, perm MapPermission) *MapArea {
	return &MapArea{
		vpns:   mm.VPNRange{Start: start.Floor(), End: end.Ceil()},
		frames: make(map[mm.VirtPageNum]*mm.Frame),
		kind:   kind,
		perm:   perm,
	}
}

// mapAreaFromAnother returns an unmapped area with the same geometry as
// other.
func mapAreaFromAnother(other *MapArea) *MapArea {
	return &MapArea{
		vpns:   other.vpns,
		frames: make(map[mm.VirtPageNum]*mm.Frame),
		kind:   other.kind,
		perm:   other.perm,
	}
}

// Range returns the virtual pages covered by the area.
func (a *MapArea) Range() mm.VPNRange { return a.vpns }

// Kind returns the area's mapping type.
func (a *MapArea) Kind() MapType { return a.kind }

// Permission returns the area's permissions.
func (a *MapArea) Permission() MapPermission { return a.perm }

func (a *MapArea) mapOne(pt *PageTable, vpn mm.VirtPageNum) {
	var ppn mm.PhysPageNum

	switch a.kind {
	case MapIdentical:
		ppn = mm.PhysPageNum(vpn)
	case MapFramed:
		frame, err := mm.AllocFrame()
		if err != nil {
			panic(err)
		}
		ppn = frame.PPN
		a.frames[vpn] = frame
	}
	pt.Map(vpn, ppn, PageTableEntryFlag(a.perm))
}

func (a *MapArea) unmapOne(pt *PageTable, vpn mm.VirtPageNum) {
	if frame, ok := a.frames[vpn]; ok {
		frame.Release()
		delete(a.frames, vpn)
	}
	pt.Unmap(vpn)
}

// Map installs every page of the area into pt.
func (a *MapArea) Map(pt *PageTable) {
	for vpn := a.vpns.Start; vpn < a.vpns.End; vpn++ {
		a.mapOne(pt, vpn)
	}
}

// Unmap removes every page of the area from pt and releases the frames the
// area owns.
func (a *MapArea) Unmap(pt *PageTable) {
	for vpn := a.vpns.Start; vpn < a.vpns.End; vpn++ {
		a.unmapOne(pt, vpn)
	}
}

// CopyData copies data into the area page by page starting at its first
// page. The area must be framed and already mapped in pt.
func (a *MapArea) CopyData(pt *PageTable, data []byte) {
	a.copyData(pt, 0, data)
}

// copyData behaves like CopyData but starts offset bytes into the first
// page of the area.
func (a *MapArea) copyData(pt *PageTable, offset uint64, data []byte) {
	if a.kind != MapFramed {
		panic(errCopyToIdentical)
	}

	for vpn := a.vpns.Start; len(data) > 0; vpn, offset = vpn+1, 0 {
		pte, ok := pt.Translate(vpn)
		if !ok {
			panic(errNotMapped)
		}
		n := kernel.Memcopy(data, pte.PPN().Bytes()[offset:])
		data = data[n:]
	}
}
