package kmain

import (
	"sort"

	"github.com/PinYu1618/snail/device/blk"
	"github.com/PinYu1618/snail/kernel"
	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/fs"
	"github.com/PinYu1618/snail/kernel/fs/ramfs"
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/hal"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/pmm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/task"
	"github.com/PinYu1618/snail/kernel/timer"
	"github.com/PinYu1618/snail/kernel/trap"
	"github.com/dustin/go-humanize"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoDisk        = &kernel.Error{Module: "kmain", Message: "no block device for the application filesystem"}
	errAppImport     = &kernel.Error{Module: "kmain", Message: "could not load the applications"}
	errNoInit        = &kernel.Error{Module: "kmain", Message: "init application not found"}
)

// Kmain boots the kernel on the attached board with the supplied
// applications stored in its filesystem and starts the first process.
//
// Kmain is not expected to return. The board powers off once initproc exits
// or no task is left to run.
func Kmain(board *config.Board, apps map[string][]byte) {
	if level, ok := kfmt.ParseLevel(board.Log); ok {
		kfmt.SetLevel(level)
	} else {
		kfmt.Warnf("kmain", "unknown log level %q", board.Log)
	}

	layout := board.Layout()

	var err *kernel.Error
	if err = pmm.Init(mm.PhysAddr(layout.Ekernel), mm.Phys().End()); err != nil {
		panic(err)
	}
	kfmt.Infof("kmain", "%s of memory, %d free frames", humanize.IBytes(uint64(board.Memory)), pmm.FreeFrames())

	if err = gate.Init(layout); err != nil {
		panic(err)
	}
	vmm.InitKernelSpace(board)
	trap.Init()
	timer.Init(board.ClockFreq)

	hal.DetectHardware(board)
	mountApps(board, apps)
	fs.ListApps(kfmt.GetOutputSink())

	task.Init()
	initproc, ok := fs.OpenFile(board.Init, fs.OpenRDONLY)
	if !ok {
		kfmt.Errorf("kmain", "cannot open %q", board.Init)
		panic(errNoInit)
	}
	task.AddInitproc(initproc.ReadAll())

	timer.SetNextTrigger()
	task.RunTasks()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating it as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// mountApps stores apps on the active block device and mounts the result
// as the root directory.
func mountApps(board *config.Board, apps map[string][]byte) {
	dev := hal.ActiveBlockDevice()
	if dev == nil {
		panic(errNoDisk)
	}

	root := ramfs.New(blk.NewCache(dev, board.Disk.CacheBlocks))
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := root.Import(name, apps[name]); err != nil {
			kfmt.Errorf("kmain", "%v", err)
			panic(errAppImport)
		}
	}
	fs.Mount(root)
}
