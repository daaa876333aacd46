package syscall

import (
	"github.com/PinYu1618/snail/kernel/fs"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/task"
)

func sysWrite(fd int, buf, n uint64) int64 {
	t := task.CurrentTask()
	f, ok := t.File(fd)
	if !ok || !f.File().Writable() {
		return -1
	}

	bufs, err := vmm.TranslatedByteBuffer(t.UserToken(), mm.VirtAddr(buf), n)
	if err != nil {
		return -1
	}
	return int64(f.File().Write(vmm.NewUserBuffer(bufs)))
}

func sysRead(fd int, buf, n uint64) int64 {
	t := task.CurrentTask()
	f, ok := t.File(fd)
	if !ok || !f.File().Readable() {
		return -1
	}

	bufs, err := vmm.TranslatedByteBuffer(t.UserToken(), mm.VirtAddr(buf), n)
	if err != nil {
		return -1
	}
	return int64(f.File().Read(vmm.NewUserBuffer(bufs)))
}

func sysOpen(path uint64, flags uint32) int64 {
	t := task.CurrentTask()
	name, err := vmm.TranslatedStr(t.UserToken(), mm.VirtAddr(path))
	if err != nil {
		return -1
	}

	inode, ok := fs.OpenFile(name, fs.OpenFlags(flags))
	if !ok {
		return -1
	}
	return int64(t.InstallFile(fs.NewShared(inode)))
}

func sysClose(fd int) int64 {
	if !task.CurrentTask().CloseFile(fd) {
		return -1
	}
	return 0
}

func sysPipe(pipe uint64) int64 {
	t := task.CurrentTask()
	token := t.UserToken()

	readFd, err := vmm.TranslatedRefMut[uint64](token, mm.VirtAddr(pipe))
	if err != nil {
		return -1
	}
	writeFd, err := vmm.TranslatedRefMut[uint64](token, mm.VirtAddr(pipe+8))
	if err != nil {
		return -1
	}

	r, w := fs.MakePipe()
	*readFd = uint64(t.InstallFile(fs.NewShared(r)))
	*writeFd = uint64(t.InstallFile(fs.NewShared(w)))
	return 0
}

func sysDup(fd int) int64 {
	t := task.CurrentTask()
	f, ok := t.File(fd)
	if !ok {
		return -1
	}
	return int64(t.InstallFile(f.Dup()))
}
