// Command snail boots the kernel on a simulated RISC-V board and runs the
// built-in applications, plus any supplied on the command line, until the
// first process exits.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/PinYu1618/snail/kernel/config"
	"github.com/PinYu1618/snail/kernel/kmain"
	"github.com/PinYu1618/snail/machine"
	"github.com/PinYu1618/snail/user"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

type options struct {
	config string
	apps   string
	mem    string
	disk   string
	log    string
	init   string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options
	fs := flag.NewFlagSet("snail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.config, "config", "", "board description (YAML)")
	fs.StringVar(&opts.apps, "apps", "", "directory of extra ELF applications")
	fs.StringVar(&opts.mem, "mem", "", "memory size, e.g. 16MiB")
	fs.StringVar(&opts.disk, "disk", "", "host file used as the disk image")
	fs.StringVar(&opts.log, "log", "", "log level (error, warn, info, debug, trace)")
	fs.StringVar(&opts.init, "init", "", "name of the first application")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, errors.Errorf("unexpected arguments: %v", fs.Args())
	}
	return &opts, nil
}

// loadBoard returns the board described by opts.
func loadBoard(opts *options) (*config.Board, error) {
	board := config.Default()
	if opts.config != "" {
		var err error
		if board, err = config.Load(opts.config); err != nil {
			return nil, err
		}
	}

	if opts.mem != "" {
		size, err := humanize.ParseBytes(opts.mem)
		if err != nil {
			return nil, errors.Wrap(err, "parse -mem")
		}
		board.Memory = config.Size(size)
	}
	if opts.disk != "" {
		board.Disk.Image = opts.disk
	}
	if opts.log != "" {
		board.Log = opts.log
	}
	if opts.init != "" {
		board.Init = opts.init
	}

	if err := board.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid board")
	}
	return board, nil
}

// loadApps returns the built-in applications together with every regular
// file found in dir. Files override built-in apps of the same name.
func loadApps(dir string) (map[string][]byte, error) {
	apps, err := user.BuildAll()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return apps, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read apps")
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "load app %s", entry.Name())
		}
		apps[entry.Name()] = data
	}
	return apps, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "snail: %v\n", err)
		return 2
	}

	board, err := loadBoard(opts)
	if err != nil {
		fmt.Fprintf(stderr, "snail: %v\n", err)
		return 1
	}
	apps, err := loadApps(opts.apps)
	if err != nil {
		fmt.Fprintf(stderr, "snail: %v\n", err)
		return 1
	}

	m := machine.New(board, stdin, stdout)
	if failure := m.Run(func() { kmain.Kmain(board, apps) }); failure {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
