package task

import (
	"github.com/PinYu1618/snail/kernel/gate"
	"github.com/PinYu1618/snail/kernel/kfmt"
	"github.com/PinYu1618/snail/kernel/sbi"
	"github.com/PinYu1618/snail/kernel/sync"
)

// Processor holds the task running on the hart and the context of the
// scheduling loop.
type Processor struct {
	current *TaskControlBlock
	idle    TaskContext
}

var (
	processor = sync.NewUPSafeCell(Processor{})

	// initproc adopts orphaned tasks. Its exit stops the board.
	initproc *TaskControlBlock

	// halted is set once the kernel asked the firmware to power off.
	halted bool

	// shutdownFn is mocked by tests.
	shutdownFn = sbi.Shutdown
)

// Init resets the scheduler state and installs the yield hook used by
// blocking kernel paths.
func Init() {
	pidAllocator.With(func(a *PidAllocator) { *a = PidAllocator{} })
	manager.With(func(m *TaskManager) { *m = TaskManager{} })
	processor.With(func(p *Processor) { *p = Processor{} })
	initproc = nil
	halted = false
	sync.SetYield(SuspendCurrentAndRunNext)
}

func shutdown(failure bool) {
	halted = true
	shutdownFn(failure)
}

// AddInitproc creates the first user task from elf and queues it.
func AddInitproc(elf []byte) *TaskControlBlock {
	initproc = New(elf)
	AddTask(initproc)
	return initproc
}

// Initproc returns the first user task.
func Initproc() *TaskControlBlock { return initproc }

// CurrentTask returns the running task or nil.
func CurrentTask() *TaskControlBlock {
	var t *TaskControlBlock
	processor.With(func(p *Processor) { t = p.current })
	return t
}

// TakeCurrentTask clears the current slot and returns its task.
func TakeCurrentTask() *TaskControlBlock {
	var t *TaskControlBlock
	processor.With(func(p *Processor) { t, p.current = p.current, nil })
	return t
}

// CurrentUserToken returns the satp value of the running task.
func CurrentUserToken() uint64 {
	return CurrentTask().UserToken()
}

// CurrentTrapContext returns the trap context page of the running task.
func CurrentTrapContext() gate.ContextPage {
	return CurrentTask().TrapContext()
}

// RunTasks is the scheduling loop. It switches to every ready task in turn
// and returns once the board has been shut down.
func RunTasks() {
	for !halted {
		t, ok := FetchTask()
		if !ok {
			kfmt.Warnf("task", "no ready tasks left, shutting down")
			shutdown(false)
			return
		}

		p := processor.Exclusive()
		idle := &p.idle

		in := t.inner.Exclusive()
		next := &in.taskCx
		in.status = Running
		t.inner.Release()

		p.current = t
		processor.Release()

		Switch(idle, next)
	}
}

// Schedule switches from switched back to the scheduling loop.
func Schedule(switched *TaskContext) {
	var idle *TaskContext
	processor.With(func(p *Processor) { idle = &p.idle })
	Switch(switched, idle)
}

// SuspendCurrentAndRunNext puts the running task at the back of the ready
// queue and runs the next one.
func SuspendCurrentAndRunNext() {
	t := TakeCurrentTask()
	if t == nil {
		kfmt.Warnf("task", "suspend without a running task")
		return
	}

	in := t.inner.Exclusive()
	cx := &in.taskCx
	in.status = Ready
	t.inner.Release()

	AddTask(t)
	Schedule(cx)
}

// ExitCurrentAndRunNext turns the running task into a zombie with the given
// exit code and runs the next task. It does not return.
func ExitCurrentAndRunNext(code int) {
	t := TakeCurrentTask()
	if t == initproc {
		kfmt.Infof("task", "initproc exited with code %d", code)
		shutdown(code != 0)
	}

	in := t.inner.Exclusive()
	in.status = Zombie
	in.exitCode = code

	orphans := in.children
	in.children = nil

	files := in.fdTable
	in.fdTable = nil

	in.memorySet.RecycleDataPages()
	t.inner.Release()

	if t != initproc && initproc != nil {
		initproc.inner.With(func(adopter *taskInner) {
			for _, child := range orphans {
				child.inner.With(func(c *taskInner) { c.parent = initproc })
				adopter.children = append(adopter.children, child)
			}
		})
	}

	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
	kfmt.Debugf("task", "pid %d exited with code %d", t.Pid(), code)

	var idle *TaskContext
	processor.With(func(p *Processor) { idle = &p.idle })
	switchAndExit(idle)
}
