package vmm

const (
	// pageLevels indicates the number of page levels used by Sv39.
	pageLevels = 3

	// entriesPerTable is the number of entries in each page table.
	entriesPerTable = 512

	// satpModeSv39 is the MODE field value which enables Sv39 translation.
	satpModeSv39 = 8

	// ptePPNShift is the bit offset of the physical page number field in a
	// page table entry.
	ptePPNShift = 10

	// ptePPNMask extracts the 44-bit physical page number of an entry once it
	// has been shifted down by ptePPNShift.
	ptePPNMask = 1<<44 - 1
)

const (
	// FlagValid is set when the entry holds a translation or points to the
	// next level table.
	FlagValid PageTableEntryFlag = 1 << iota

	// FlagRead is set if the page can be read from.
	FlagRead

	// FlagWrite is set if the page can be written to.
	FlagWrite

	// FlagExecute is set if instructions can be fetched from the page.
	FlagExecute

	// FlagUser is set if user-mode code can access this page. If not set
	// only supervisor code can access this page.
	FlagUser

	// FlagGlobal marks a mapping that exists in every address space.
	FlagGlobal

	// FlagAccessed is set when the page has been accessed.
	FlagAccessed

	// FlagDirty is set when the page has been written to.
	FlagDirty
)
