// Quill CLI - runs and inspects compiled script bundles
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/chazu/quill/host"
	"github.com/chazu/quill/manifest"
	"github.com/chazu/quill/stdlib"
	"github.com/chazu/quill/vm"
	"github.com/chazu/quill/vm/dist"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("quill")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: quill <command> [options] [bundle] [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run      Load a bundle and run it to completion\n")
	fmt.Fprintf(os.Stderr, "  disasm   Print the instructions of a bundle\n")
	fmt.Fprintf(os.Stderr, "  verify   Check a bundle's hash and capabilities\n")
	fmt.Fprintf(os.Stderr, "\nWithout a bundle argument the one named in quill.toml is used.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  quill run                    # run the project bundle\n")
	fmt.Fprintf(os.Stderr, "  quill run -t 5s app.qb 1 2   # run app.qb with args, 5s limit\n")
	fmt.Fprintf(os.Stderr, "  quill disasm app.qb\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		var code int
		code, err = runCommand(args)
		if err == nil {
			os.Exit(code)
		}
	case "disasm":
		err = disasmCommand(args)
	case "verify":
		err = verifyCommand(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest finds quill.toml from the working directory, falling back
// to defaults.
func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		m = manifest.Default(wd)
	}
	return m, nil
}

func bundlePath(m *manifest.Manifest, fs *flag.FlagSet) (string, []string) {
	if fs.NArg() > 0 {
		return fs.Arg(0), fs.Args()[1:]
	}
	return m.BundlePath(), m.Script.Args
}

func newEnvironment() *vm.Environment {
	env := vm.NewEnvironment()
	stdlib.Register(env, stdlib.Options{Out: os.Stdout})
	return env
}

func runCommand(args []string) (int, error) {
	m, err := loadManifest()
	if err != nil {
		return 0, err
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	timeout := fs.Duration("t", 0, "Abort the script after this long (overrides quill.toml)")
	verbosity := fs.Int("v", m.Runtime.LogVerbosity, "Log verbosity")
	logFile := fs.String("log", "", "Log to this file instead of stderr")
	trace := fs.Bool("trace", m.Runtime.Trace, "Log every executed instruction")
	fs.Parse(args)

	configureLogging(m, *verbosity, *logFile, *trace)

	path, scriptArgs := bundlePath(m, fs)
	b, err := dist.ReadFile(path)
	if err != nil {
		return 0, err
	}
	env := newEnvironment()
	policy := dist.NewPolicy(m.Capabilities.Allow, m.Capabilities.Deny)
	if err := policy.Admit(b, env); err != nil {
		return 0, err
	}
	script, err := b.Load()
	if err != nil {
		return 0, err
	}

	limit := *timeout
	if limit == 0 {
		if limit, err = m.Timeout(); err != nil {
			return 0, err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	th := vm.NewThread(env, script, parseArgs(scriptArgs)...)
	log.Infof("running %s as thread %s", script.Name, th.ID())
	result, err := host.Run(ctx, th, host.NewConsole(os.Stdin, os.Stdout))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s: timed out after %s", script.Name, limit)
		}
		return 0, err
	}

	// An integer result becomes the exit code.
	if result.IsInteger() {
		return int(result.Int()), nil
	}
	if !result.IsNull() {
		fmt.Println(result.AsString())
	}
	return 0, nil
}

func configureLogging(m *manifest.Manifest, verbosity int, logFile string, trace bool) {
	path := m.LogFilePath()
	if logFile != "" {
		path = &logFile
	}
	if trace && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, path)
}

// parseArgs turns command-line strings into primitives; anything that
// parses as a number is passed as one.
func parseArgs(args []string) []vm.Primitive {
	out := make([]vm.Primitive, len(args))
	for i, a := range args {
		if f, err := strconv.ParseFloat(a, 64); err == nil {
			out[i] = vm.Number(f)
		} else {
			out[i] = vm.String(a)
		}
	}
	return out
}

func disasmCommand(args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	fs.Parse(args)

	path, _ := bundlePath(m, fs)
	b, err := dist.ReadFile(path)
	if err != nil {
		return err
	}
	script, err := b.Load()
	if err != nil {
		return err
	}
	fmt.Printf("; bundle %s hash %x\n", path, b.Hash)
	if len(b.Capabilities) > 0 {
		fmt.Printf("; requires %v\n", b.Capabilities)
	}
	fmt.Print(script.Disassemble())
	return nil
}

func verifyCommand(args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Parse(args)

	path, _ := bundlePath(m, fs)
	b, err := dist.ReadFile(path)
	if err != nil {
		return err
	}
	if err := b.Verify(); err != nil {
		return err
	}
	policy := dist.NewPolicy(m.Capabilities.Allow, m.Capabilities.Deny)
	if err := policy.Admit(b, newEnvironment()); err != nil {
		return err
	}
	fmt.Printf("%s: ok (%x)\n", path, b.Hash)
	return nil
}
