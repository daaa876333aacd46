package config

import (
	"bytes"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Size is a byte count. In board files it may be written as a plain integer
// or in human readable form ("8MiB", "512KB").
type Size uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", raw)
	}

	*s = Size(v)
	return nil
}

// String returns the size in IEC units.
func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// MMIOWindow is a memory-mapped device region the kernel identity-maps.
type MMIOWindow struct {
	Name string `yaml:"name"`
	Base uint64 `yaml:"base"`
	Size Size   `yaml:"size"`
}

// KernelImage gives the size in pages of each kernel image section. The
// last text page holds the trampoline.
type KernelImage struct {
	Text   int `yaml:"text"`
	Rodata int `yaml:"rodata"`
	Data   int `yaml:"data"`
	Bss    int `yaml:"bss"`
}

// Disk describes the block device backing the application filesystem.
type Disk struct {
	// Blocks is the number of 512-byte blocks of the RAM disk used when
	// no image is given.
	Blocks int `yaml:"blocks"`

	// Image is an optional host file used as the disk.
	Image string `yaml:"image"`

	// CacheBlocks is the number of blocks held by the block cache.
	CacheBlocks int `yaml:"cache_blocks"`
}

// Board describes the machine the kernel boots on.
type Board struct {
	// Memory is the amount of RAM starting at MemoryBase.
	Memory Size `yaml:"memory"`

	// ClockFreq is the frequency of the time CSR in Hz.
	ClockFreq uint64 `yaml:"clock_freq"`

	Kernel KernelImage  `yaml:"kernel"`
	MMIO   []MMIOWindow `yaml:"mmio"`
	Disk   Disk         `yaml:"disk"`

	// Log is the console log level (error, warn, info, debug, trace).
	Log string `yaml:"log"`

	// Init is the name of the application started as the first process.
	Init string `yaml:"init"`
}

// Default returns the description of a QEMU virt board with 8MiB of RAM.
func Default() *Board {
	return &Board{
		Memory:    8 << 20,
		ClockFreq: 12500000,
		Kernel:    KernelImage{Text: 16, Rodata: 4, Data: 4, Bss: 16},
		MMIO: []MMIOWindow{
			{Name: "virt-test", Base: 0x00100000, Size: 0x1000},
			{Name: "clint", Base: 0x02000000, Size: 0x10000},
			{Name: "plic", Base: 0x0c000000, Size: 0x400000},
			{Name: "uart+virtio", Base: 0x10000000, Size: 0x2000},
		},
		Disk: Disk{Blocks: 4096, CacheBlocks: 16},
		Log:  "info",
		Init: "initproc",
	}
}

// Load reads a board description from a YAML file. Fields missing from the
// file keep their Default values.
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read board config")
	}

	b, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "board config %s", path)
	}
	return b, nil
}

// Parse decodes a YAML board description on top of the defaults.
func Parse(data []byte) (*Board, error) {
	b := Default()
	if len(bytes.TrimSpace(data)) != 0 {
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(b); err != nil {
			return nil, errors.Wrap(err, "decode yaml")
		}
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks that the description can be booted. It rounds the memory
// size down to a whole number of pages.
func (b *Board) Validate() error {
	b.Memory = Size(uint64(b.Memory) &^ (PageSize - 1))

	imagePages := b.Kernel.Text + b.Kernel.Rodata + b.Kernel.Data + b.Kernel.Bss
	switch {
	case b.Kernel.Text < 2:
		return errors.New("kernel text needs at least two pages (entry points and trampoline)")
	case b.Kernel.Rodata < 0 || b.Kernel.Data < 0 || b.Kernel.Bss < 0:
		return errors.New("kernel section sizes must not be negative")
	case uint64(imagePages)*PageSize >= uint64(b.Memory):
		return errors.Errorf("kernel image (%d pages) does not fit in %s of memory", imagePages, b.Memory)
	case b.ClockFreq < 1000:
		return errors.Errorf("clock frequency %d Hz is too low", b.ClockFreq)
	case b.Disk.Blocks <= 0 && b.Disk.Image == "":
		return errors.New("disk needs either a block count or an image")
	case b.Init == "":
		return errors.New("no init application configured")
	}

	for _, w := range b.MMIO {
		if w.Size == 0 {
			return errors.Errorf("mmio window %q has zero size", w.Name)
		}
		if w.Base < MemoryBase+uint64(b.Memory) && MemoryBase < w.Base+uint64(w.Size) {
			return errors.Errorf("mmio window %q overlaps memory", w.Name)
		}
	}

	if b.Disk.CacheBlocks <= 0 {
		b.Disk.CacheBlocks = 16
	}
	return nil
}

// Layout is the physical placement of the kernel image. Every boundary is
// page aligned.
type Layout struct {
	Stext, Etext     uint64
	Srodata, Erodata uint64
	Sdata, Edata     uint64
	SbssWithStack    uint64
	Ebss             uint64
	Ekernel          uint64
	Strampoline      uint64
	MemoryEnd        uint64
}

// Layout computes the kernel image layout for the board.
func (b *Board) Layout() Layout {
	var (
		l    Layout
		next = uint64(MemoryBase)
	)

	l.Stext = next
	next += uint64(b.Kernel.Text) * PageSize
	l.Etext = next
	l.Strampoline = l.Etext - PageSize

	l.Srodata = next
	next += uint64(b.Kernel.Rodata) * PageSize
	l.Erodata = next

	l.Sdata = next
	next += uint64(b.Kernel.Data) * PageSize
	l.Edata = next

	l.SbssWithStack = next
	next += uint64(b.Kernel.Bss) * PageSize
	l.Ebss = next

	l.Ekernel = next
	l.MemoryEnd = MemoryBase + uint64(b.Memory)
	return l
}
