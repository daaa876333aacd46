package mm

const (
	// PointerShift is equal to log2(8). Page table entries and machine
	// words are (1 << PointerShift) bytes wide.
	PointerShift = uint64(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert an address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = uint64(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uint64(1 << PageShift)

	// PAWidth is the number of significant physical address bits (Sv39).
	PAWidth = 56

	// VAWidth is the number of significant virtual address bits (Sv39).
	VAWidth = 39

	// PPNWidth is the number of bits in a physical page number.
	PPNWidth = PAWidth - PageShift

	// VPNWidth is the number of bits in a virtual page number.
	VPNWidth = VAWidth - PageShift
)
