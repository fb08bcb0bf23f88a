// Command pysandbox is a small CLI front door onto the sandboxed Python
// interpreter library, grounded on please.go's own shape: grouped
// go-flags options, automaxprocs, a config file, and one subcommand per
// mode of operation, trimmed down to a library's entry points
// (run/repl/watch) rather than a build system's.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/manifoldco/promptui"
	"github.com/please-build/gcfg"
	"github.com/thought-machine/go-flags"
	"go.uber.org/automaxprocs/maxprocs"

	pysandbox "github.com/sandboxed-py/interp"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyfs"
	"github.com/sandboxed-py/interp/src/pylog"
	"github.com/sandboxed-py/interp/src/pyval"
)

var log = pylog.Log

// config is the on-disk .pysandboxconfig shape (spec.md §6.1's options,
// as host-wide defaults rather than per-call): a scaled-down analogue of
// core.Configuration's [please] section.
type config struct {
	Sandbox struct {
		TimeoutMillis int64
		Modules       []string
		Network       bool
		SQL           bool
		ObjectStorage bool
		Profile       bool
	}
}

func loadConfig(path string) config {
	var cfg config
	if err := gcfg.ReadFileInto(&cfg, path); err != nil && !os.IsNotExist(err) {
		log.Warning("failed to read %s: %s", path, err)
	}
	return cfg
}

var opts struct {
	Usage string `usage:"pysandbox runs untrusted Python programs through an embedded tree-walking interpreter. It never spawns a subprocess or a language VM; every capability (filesystem, network, sql, object storage) is opt-in."`

	SandboxFlags struct {
		ConfigFile    string   `long:"config" description:"Config file to load defaults from" default:".pysandboxconfig"`
		TimeoutMillis int64    `long:"timeout_millis" description:"Compute budget in milliseconds (0 = unlimited)"`
		Modules       []string `long:"module" description:"Permit a stdlib module (repeatable)"`
		Network       bool     `long:"network" description:"Grant network capability"`
		SQL           bool     `long:"sql" description:"Grant sql capability"`
		ObjectStorage bool     `long:"object_storage" description:"Grant object_storage capability"`
		Profile       bool     `long:"profile" description:"Set Options.Profile (the interpreter records no profile counters during a run)"`
		Root          string   `long:"root" description:"Root directory for the on-disk filesystem adapter; unset disables filesystem capability"`
	} `group:"Options controlling the sandbox's capabilities"`

	Verbosity int `short:"v" long:"verbosity" description:"Log verbosity (0=critical .. 5=debug)" default:"3"`

	Run struct {
		Args struct {
			Path string `positional-arg-name:"file" description:"Python source file to run"`
		} `positional-args:"true" required:"true"`
	} `command:"run" description:"Run a Python source file once and print its result"`

	Repl struct {
	} `command:"repl" description:"Start an interactive read-eval-print loop"`

	Watch struct {
		Args struct {
			Path string `positional-arg-name:"file" description:"Python source file to watch and re-run on change"`
		} `positional-args:"true" required:"true"`
	} `command:"watch" description:"Re-run a file every time it changes on disk"`
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := flags.NewParser(&opts, flags.Default)
	_, err := parser.ParseArgs(args[1:])
	if err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	pylog.InitLogging(pylog.Level(opts.Verbosity))
	if _, err := maxprocs.Set(maxprocs.Logger(log.Info)); err != nil {
		log.Warning("failed to set GOMAXPROCS: %s", err)
	}
	cfg := loadConfig(opts.SandboxFlags.ConfigFile)
	base := optionsFromConfig(cfg)

	switch parser.Active.Name {
	case "run":
		return runFile(opts.Run.Args.Path, base)
	case "repl":
		return repl(base)
	case "watch":
		return watch(opts.Watch.Args.Path, base)
	default:
		fmt.Fprintln(os.Stderr, "no command given; see --help")
		return 1
	}
}

// optionsFromConfig merges the config file's defaults with any
// command-line overrides, command-line flags winning when both set a
// non-zero value.
func optionsFromConfig(cfg config) pysandbox.Options {
	timeout := cfg.Sandbox.TimeoutMillis
	if opts.SandboxFlags.TimeoutMillis != 0 {
		timeout = opts.SandboxFlags.TimeoutMillis
	}
	modules := cfg.Sandbox.Modules
	if len(opts.SandboxFlags.Modules) > 0 {
		modules = opts.SandboxFlags.Modules
	}
	var o pysandbox.Options
	o.TimeoutMillis = timeout
	o.Modules = modules
	o.Network = cfg.Sandbox.Network || opts.SandboxFlags.Network
	o.SQL = cfg.Sandbox.SQL || opts.SandboxFlags.SQL
	o.ObjectStorage = cfg.Sandbox.ObjectStorage || opts.SandboxFlags.ObjectStorage
	o.Profile = cfg.Sandbox.Profile || opts.SandboxFlags.Profile
	o.Env = map[string]string{}
	if opts.SandboxFlags.Root != "" {
		disk, err := newDiskFS(opts.SandboxFlags.Root)
		if err != nil {
			log.Error("failed to root filesystem adapter at %s: %s", opts.SandboxFlags.Root, err)
		} else {
			o.Filesystem = disk
		}
	}
	return o
}

func runFile(path string, base pysandbox.Options) int {
	src, err := os.ReadFile(path)
	if err != nil {
		log.Error("%s", err)
		return 1
	}
	result, perr := pysandbox.Run(string(src), base)
	for _, line := range pysandbox.Output(result.Context) {
		fmt.Println(line)
	}
	if perr != nil {
		log.Error("%s", perr)
		return 1
	}
	if result.Value.Kind != pyval.KindNone {
		fmt.Println(pyval.Stringify(result.Value))
	}
	return 0
}

// repl is a line-at-a-time read-eval-print loop: each accepted line is
// run as its own program against a fresh Context, mirroring the
// "opaque bytes in, opaque bytes out" shape of a single Run rather than
// please's own build-graph session state.
func repl(base pysandbox.Options) int {
	for {
		prompt := promptui.Prompt{Label: ">>>"}
		line, err := prompt.Run()
		if err == promptui.ErrInterrupt || err == promptui.ErrEOF {
			return 0
		}
		if err != nil {
			log.Error("%s", err)
			return 1
		}
		if line == "" {
			continue
		}
		result, perr := pysandbox.Run(line, base)
		for _, out := range pysandbox.Output(result.Context) {
			fmt.Println(out)
		}
		if perr != nil {
			fmt.Println(perr)
			continue
		}
		if result.Value.Kind != pyval.KindNone {
			fmt.Println(pyval.Stringify(result.Value))
		}
	}
}

// watch re-runs path every time it's written to, debouncing bursts of
// events the way watch.Watch debounces filesystem notifications before
// triggering a rebuild.
func watch(path string, base pysandbox.Options) int {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("failed to start watcher: %s", err)
		return 1
	}
	defer watcher.Close()
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		log.Error("failed to watch %s: %s", dir, err)
		return 1
	}
	log.Notice("watching %s", path)
	runFile(path, base)
	const debounce = 100 * time.Millisecond
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return 0
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
		drain:
			for {
				select {
				case <-watcher.Events:
				case <-time.After(debounce):
					break drain
				}
			}
			log.Notice("change detected, re-running")
			runFile(path, base)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return 0
			}
			log.Error("watcher error: %s", werr)
		}
	}
}

func newDiskFS(root string) (pyctx.FilesystemAPI, error) {
	return pyfs.NewDisk(root)
}
