package syscall

import (
	"github.com/PinYu1618/snail/kernel/fs"
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/mm"
	"github.com/PinYu1618/snail/kernel/mm/vmm"
	"github.com/PinYu1618/snail/kernel/task"
	"github.com/PinYu1618/snail/kernel/timer"
)

// maxExecArgs bounds the argv vector read from user memory.
const maxExecArgs = 64

func sysExit(code int32) int64 {
	kfmt.Debugf("syscall", "pid %d exit(%d)", task.CurrentTask().Pid(), code)
	task.ExitCurrentAndRunNext(int(code))
	return 0
}

func sysYield() int64 {
	task.SuspendCurrentAndRunNext()
	return 0
}

func sysGetTime() int64 {
	return int64(timer.GetTimeMs())
}

func sysGetPid() int64 {
	return int64(task.CurrentTask().Pid())
}

func sysFork() int64 {
	child := task.CurrentTask().Fork()
	child.TrapContext().SetReg(gate.RegA0, 0)
	task.AddTask(child)
	return int64(child.Pid())
}

func sysExec(path, argv uint64) int64 {
	t := task.CurrentTask()
	token := t.UserToken()

	name, err := vmm.TranslatedStr(token, mm.VirtAddr(path))
	if err != nil {
		return -1
	}

	var args []string
	for argv != 0 {
		ptr, err := vmm.TranslatedRef[uint64](token, mm.VirtAddr(argv))
		if err != nil || len(args) == maxExecArgs {
			return -1
		}
		if *ptr == 0 {
			break
		}
		arg, err := vmm.TranslatedStr(token, mm.VirtAddr(*ptr))
		if err != nil {
			return -1
		}
		args = append(args, arg)
		argv += 8
	}

	inode, ok := fs.OpenFile(name, fs.OpenRDONLY)
	if !ok {
		return -1
	}
	if err := t.Exec(inode.ReadAll(), args); err != nil {
		kfmt.Debugf("syscall", "pid %d exec(%q): %s", t.Pid(), name, err.Message)
		return -1
	}

	// the return value lands in a0 of the new image
	return int64(len(args))
}

func sysWaitPid(pid int64, exitCode uint64) int64 {
	t := task.CurrentTask()

	// a bad pointer must not cost the caller its child's exit status
	var codeRef *int32
	if exitCode != 0 {
		ref, err := vmm.TranslatedRefMut[int32](t.UserToken(), mm.VirtAddr(exitCode))
		if err != nil {
			return -1
		}
		codeRef = ref
	}

	childPid, code := t.WaitChild(int(pid))
	if childPid < 0 {
		return int64(childPid)
	}
	if codeRef != nil {
		*codeRef = int32(code)
	}
	return int64(childPid)
}
