package user

import (
	"sort"

	"github.com/PinYu1618/snail/kernel/cpu/rvasm"
	"github.com/pkg/errors"
)

// exitMagic is the code the exitcode child exits with.
const exitMagic = 7

// forkChildren is the number of children spawned by forktest.
const forkChildren = 4

var apps = map[string]func(p *Program){
	"initproc":  initproc,
	"hello":     hello,
	"exitcode":  exitcode,
	"yieldregs": yieldregs,
	"forktest":  forktest,
	"pipetest":  pipetest,
	"usertests": usertests,
}

// Names returns the names of the built-in apps in sorted order.
func Names() []string {
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build assembles and links the named app.
func Build(name string) ([]byte, error) {
	fn, ok := apps[name]
	if !ok {
		return nil, errors.Errorf("unknown app %q", name)
	}
	p := NewProgram()
	fn(p)
	elf, err := p.Build()
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", name)
	}
	return elf, nil
}

// BuildAll returns every built-in app keyed by name.
func BuildAll() (map[string][]byte, error) {
	out := make(map[string][]byte, len(apps))
	for _, name := range Names() {
		elf, err := Build(name)
		if err != nil {
			return nil, err
		}
		out[name] = elf
	}
	return out, nil
}

// verdict emits the pass and fail exits of main. Failing branches jump to
// prefix+".fail".
func (p *Program) verdict(prefix string, regs ...rvasm.Reg) {
	p.String(prefix+".passed", prefix+" passed!\n")
	p.String(prefix+".failed", prefix+" failed!\n")

	p.Puts(prefix + ".passed")
	p.Li(rvasm.A0, 0)
	p.Leave(regs...)

	p.Label(prefix + ".fail")
	p.Puts(prefix + ".failed")
	p.Li(rvasm.A0, 1)
	p.Leave(regs...)
}

// initproc runs usertests in a child, then reaps every task handed to it
// and exits with the bitwise or of their exit codes.
func initproc(p *Program) {
	p.String("initproc.shell", "usertests")
	p.Space("initproc.argv", 16)
	p.Space("initproc.code", 8)

	p.Label("main")
	p.Enter(rvasm.S0)
	p.Li(rvasm.S0, 0)
	p.Syscall(SysFork)
	p.BnezL(rvasm.A0, "initproc.reap")

	p.La(rvasm.T0, "initproc.argv")
	p.La(rvasm.A0, "initproc.shell")
	p.Emit(rvasm.Sd(rvasm.A0, rvasm.T0, 0), rvasm.Sd(rvasm.Zero, rvasm.T0, 8))
	p.Emit(rvasm.Mv(rvasm.A1, rvasm.T0))
	p.Syscall(SysExec)
	p.Syscall(SysExit)

	p.Label("initproc.reap")
	p.Li(rvasm.A0, -1)
	p.La(rvasm.A1, "initproc.code")
	p.Call("wait")
	p.Li(rvasm.T0, -1)
	p.BeqL(rvasm.A0, rvasm.T0, "initproc.done")
	p.La(rvasm.T0, "initproc.code")
	p.Emit(rvasm.Lw(rvasm.T1, rvasm.T0, 0), rvasm.Or(rvasm.S0, rvasm.S0, rvasm.T1))
	p.J("initproc.reap")

	p.Label("initproc.done")
	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S0))
	p.Leave(rvasm.S0)
}

// hello greets and echoes argv[1:], one argument per line.
func hello(p *Program) {
	p.String("hello.msg", "Hello, world!\n")
	p.String("hello.nl", "\n")

	p.Label("main")
	p.Enter(rvasm.S0, rvasm.S1, rvasm.S2)
	p.Emit(rvasm.Mv(rvasm.S1, rvasm.A0), rvasm.Mv(rvasm.S2, rvasm.A1))
	p.Puts("hello.msg")

	p.Li(rvasm.S0, 1)
	p.Label("hello.args")
	p.BgeL(rvasm.S0, rvasm.S1, "hello.done")
	p.Emit(
		rvasm.Slli(rvasm.T0, rvasm.S0, 3),
		rvasm.Add(rvasm.T0, rvasm.S2, rvasm.T0),
		rvasm.Ld(rvasm.A0, rvasm.T0, 0),
	)
	p.Call("puts")
	p.Puts("hello.nl")
	p.Emit(rvasm.Addi(rvasm.S0, rvasm.S0, 1))
	p.J("hello.args")

	p.Label("hello.done")
	p.Li(rvasm.A0, 0)
	p.Leave(rvasm.S0, rvasm.S1, rvasm.S2)
}

// exitcode checks that waitpid reports the exit code of a child.
func exitcode(p *Program) {
	p.Space("exitcode.code", 8)

	p.Label("main")
	p.Enter(rvasm.S0)
	p.Syscall(SysFork)
	p.BnezL(rvasm.A0, "exitcode.parent")
	p.Li(rvasm.A0, exitMagic)
	p.Syscall(SysExit)

	p.Label("exitcode.parent")
	p.Emit(rvasm.Mv(rvasm.S0, rvasm.A0))
	p.La(rvasm.A1, "exitcode.code")
	p.Call("wait")
	p.BneL(rvasm.A0, rvasm.S0, "exitcode.fail")
	p.La(rvasm.T0, "exitcode.code")
	p.Emit(rvasm.Lw(rvasm.T1, rvasm.T0, 0))
	p.Li(rvasm.T2, exitMagic)
	p.BneL(rvasm.T1, rvasm.T2, "exitcode.fail")

	p.verdict("exitcode", rvasm.S0)
}

// yieldPattern lists the registers yieldregs expects to survive a yield.
var yieldPattern = []rvasm.Reg{
	rvasm.S0, rvasm.S1, rvasm.S2, rvasm.S3, rvasm.S4, rvasm.S5,
	rvasm.S6, rvasm.S7, rvasm.S8, rvasm.S9, rvasm.S10, rvasm.S11,
	rvasm.A3, rvasm.A4, rvasm.A5, rvasm.A6,
	rvasm.T3, rvasm.T4, rvasm.T5, rvasm.T6,
}

func yieldValue(i int) int64 { return 0x5a5a0000 + int64(i)*0x111 }

// yieldregs fills registers with a pattern, yields and checks the pattern.
func yieldregs(p *Program) {
	saved := yieldPattern[:12]

	p.Label("main")
	p.Enter(saved...)
	for i, r := range yieldPattern {
		p.Li(r, yieldValue(i))
	}
	for i := 0; i < 3; i++ {
		p.Syscall(SysYield)
	}
	for i, r := range yieldPattern {
		p.Li(rvasm.T0, yieldValue(i))
		p.BneL(r, rvasm.T0, "yieldregs.fail")
	}

	p.verdict("yieldregs", saved...)
}

// forktest spawns children exiting with their index and reaps them all.
func forktest(p *Program) {
	p.Space("forktest.code", 8)

	p.Label("main")
	p.Enter(rvasm.S0, rvasm.S1)
	p.Li(rvasm.S0, 0)

	p.Label("forktest.spawn")
	p.Li(rvasm.T0, forkChildren)
	p.BgeL(rvasm.S0, rvasm.T0, "forktest.reap")
	p.Syscall(SysFork)
	p.BnezL(rvasm.A0, "forktest.next")
	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S0))
	p.Syscall(SysExit)
	p.Label("forktest.next")
	p.Emit(rvasm.Addi(rvasm.S0, rvasm.S0, 1))
	p.J("forktest.spawn")

	p.Label("forktest.reap")
	p.Li(rvasm.S0, 0)
	p.Li(rvasm.S1, 0)
	p.Label("forktest.wait")
	p.Li(rvasm.A0, -1)
	p.La(rvasm.A1, "forktest.code")
	p.Call("wait")
	p.Li(rvasm.T0, -1)
	p.BeqL(rvasm.A0, rvasm.T0, "forktest.check")
	p.La(rvasm.T0, "forktest.code")
	p.Emit(
		rvasm.Lw(rvasm.T1, rvasm.T0, 0),
		rvasm.Add(rvasm.S1, rvasm.S1, rvasm.T1),
		rvasm.Addi(rvasm.S0, rvasm.S0, 1),
	)
	p.J("forktest.wait")

	p.Label("forktest.check")
	p.Li(rvasm.T0, forkChildren)
	p.BneL(rvasm.S0, rvasm.T0, "forktest.fail")
	p.Li(rvasm.T0, forkChildren*(forkChildren-1)/2)
	p.BneL(rvasm.S1, rvasm.T0, "forktest.fail")

	p.verdict("forktest", rvasm.S0, rvasm.S1)
}

// pipeMessage is sent from the pipetest parent to its child.
const pipeMessage = "Hello, pipe!\n"

// pipetest sends a message through a pipe to a child that echoes it.
func pipetest(p *Program) {
	p.Space("pipetest.fds", 16)
	p.String("pipetest.msg", pipeMessage)
	p.Space("pipetest.buf", 32)
	p.Space("pipetest.code", 8)

	p.Label("main")
	p.Enter(rvasm.S0, rvasm.S1, rvasm.S2)
	p.La(rvasm.A0, "pipetest.fds")
	p.Syscall(SysPipe)
	p.BnezL(rvasm.A0, "pipetest.fail")
	p.La(rvasm.T0, "pipetest.fds")
	p.Emit(rvasm.Ld(rvasm.S0, rvasm.T0, 0), rvasm.Ld(rvasm.S1, rvasm.T0, 8))
	p.Syscall(SysFork)
	p.BnezL(rvasm.A0, "pipetest.parent")

	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S1))
	p.Syscall(SysClose)
	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S0))
	p.La(rvasm.A1, "pipetest.buf")
	p.Li(rvasm.A2, 32)
	p.Syscall(SysRead)
	p.Emit(rvasm.Mv(rvasm.A2, rvasm.A0))
	p.Li(rvasm.A0, 1)
	p.La(rvasm.A1, "pipetest.buf")
	p.Syscall(SysWrite)
	p.Li(rvasm.A0, 0)
	p.Syscall(SysExit)

	p.Label("pipetest.parent")
	p.Emit(rvasm.Mv(rvasm.S2, rvasm.A0), rvasm.Mv(rvasm.A0, rvasm.S0))
	p.Syscall(SysClose)
	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S1))
	p.La(rvasm.A1, "pipetest.msg")
	p.Li(rvasm.A2, int64(len(pipeMessage)))
	p.Syscall(SysWrite)
	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S1))
	p.Syscall(SysClose)
	p.Emit(rvasm.Mv(rvasm.A0, rvasm.S2))
	p.La(rvasm.A1, "pipetest.code")
	p.Call("wait")
	p.BneL(rvasm.A0, rvasm.S2, "pipetest.fail")

	p.verdict("pipetest", rvasm.S0, rvasm.S1, rvasm.S2)
}

// suite lists the apps run by usertests, in order.
var suite = []string{"hello", "exitcode", "yieldregs", "forktest", "pipetest"}

// usertests execs every test app in a child and checks it exits with 0.
func usertests(p *Program) {
	p.String("usertests.arg", "from usertests")
	p.Space("usertests.argv", 24)
	p.Space("usertests.code", 8)
	for _, name := range suite {
		p.String("usertests.app."+name, name)
	}

	p.Label("main")
	p.Enter(rvasm.S0)
	for _, name := range suite {
		app := "usertests.app." + name
		p.La(rvasm.T0, "usertests.argv")
		p.La(rvasm.T1, app)
		p.La(rvasm.T2, "usertests.arg")
		p.Emit(
			rvasm.Sd(rvasm.T1, rvasm.T0, 0),
			rvasm.Sd(rvasm.T2, rvasm.T0, 8),
			rvasm.Sd(rvasm.Zero, rvasm.T0, 16),
		)
		p.Syscall(SysFork)
		p.BnezL(rvasm.A0, "usertests.wait."+name)

		p.La(rvasm.A0, app)
		p.La(rvasm.A1, "usertests.argv")
		p.Syscall(SysExec)
		p.Syscall(SysExit)

		p.Label("usertests.wait." + name)
		p.Emit(rvasm.Mv(rvasm.S0, rvasm.A0))
		p.La(rvasm.A1, "usertests.code")
		p.Call("wait")
		p.BneL(rvasm.A0, rvasm.S0, "usertests.fail")
		p.La(rvasm.T0, "usertests.code")
		p.Emit(rvasm.Lw(rvasm.T1, rvasm.T0, 0))
		p.BnezL(rvasm.T1, "usertests.fail")
	}

	p.verdict("usertests", rvasm.S0)
}
