// ipf inspects and extracts IPF archives.
//
// Usage:
//
//	ipf info    [flags] <archive>
//	ipf ls      [flags] [-l] <archive> [dir]
//	ipf stat    [flags] <archive> <path>
//	ipf cat     [flags] <archive> <path>
//	ipf extract [flags] <archive> <dest> [dir]
//
// <archive> is a local file or an http(s) URL read with range requests.
// Settings can also be read from an INI file with --config; see config.go
// for the recognized sections.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/meigma/ipf"
	"github.com/meigma/ipf/cache"
	"github.com/meigma/ipf/cache/disk"
	"github.com/meigma/ipf/cache/memory"
	ipfhttp "github.com/meigma/ipf/http"
)

// usageError marks errors caused by bad invocation. They exit with 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// command is one ipf subcommand.
type command struct {
	name    string
	usage   string
	minArgs int
	maxArgs int
	flags   func(*pflag.FlagSet, *commandFlags)
	run     func(ctx context.Context, env *env, args []string) error
}

// commandFlags holds the flags specific to one subcommand.
type commandFlags struct {
	long bool
}

// env is the state shared by a running command.
type env struct {
	cfg    config
	flags  commandFlags
	stdout io.Writer
	logger *slog.Logger
}

var commands = []command{
	{name: "info", usage: "<archive>", minArgs: 1, maxArgs: 1, run: runInfo},
	{
		name: "ls", usage: "[-l] <archive> [dir]", minArgs: 1, maxArgs: 2, run: runList,
		flags: func(fs *pflag.FlagSet, f *commandFlags) {
			fs.BoolVarP(&f.long, "long", "l", false, "show sizes and offsets")
		},
	},
	{name: "stat", usage: "<archive> <path>", minArgs: 2, maxArgs: 2, run: runStat},
	{name: "cat", usage: "<archive> <path>", minArgs: 2, maxArgs: 2, run: runCat},
	{name: "extract", usage: "<archive> <dest> [dir]", minArgs: 2, maxArgs: 3, run: runExtract},
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return usagef("missing command")
		}
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		printUsage(stderr)
		return usagef("unknown command %q", args[0])
	}

	var values flagValues
	var cmdFlags commandFlags
	flagSet := pflag.NewFlagSet("ipf "+cmd.name, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	values.addFlags(flagSet)
	if cmd.flags != nil {
		cmd.flags(flagSet, &cmdFlags)
	}
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ipf %s [flags] %s\n\nFlags:\n", cmd.name, cmd.usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &usageError{msg: err.Error()}
	}
	rest := flagSet.Args()
	if len(rest) < cmd.minArgs || len(rest) > cmd.maxArgs {
		flagSet.Usage()
		return usagef("%s: expected %s", cmd.name, cmd.usage)
	}

	cfg, err := loadConfig(flagSet, &values)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	return cmd.run(ctx, &env{cfg: cfg, flags: cmdFlags, stdout: stdout, logger: logger}, rest)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ipf <command> [flags] <archive> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'ipf <command> --help' for the flags of a command.")
}

// openArchive opens a local file or URL with the configured options.
func (e *env) openArchive(location string) (*ipf.Archive, error) {
	opts, err := e.archiveOptions()
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		src, err := ipfhttp.NewSource(location)
		if err != nil {
			return nil, err
		}
		name := location[strings.LastIndex(location, "/")+1:]
		return ipf.New(src, append(opts, ipf.WithName(name))...)
	}
	return ipf.Open(location, opts...)
}

func (e *env) archiveOptions() ([]ipf.Option, error) {
	opts := []ipf.Option{
		ipf.WithLogger(e.logger),
		ipf.WithMaxFileSize(e.cfg.Archive.MaxFileSize),
		ipf.WithSpillThreshold(e.cfg.Archive.SpillThreshold),
	}
	if e.cfg.Archive.TempDir != "" {
		opts = append(opts, ipf.WithTempDir(e.cfg.Archive.TempDir))
	}
	if e.cfg.Archive.NameEncoding != "" {
		enc, err := htmlindex.Get(e.cfg.Archive.NameEncoding)
		if err != nil {
			return nil, fmt.Errorf("name encoding %q: %w", e.cfg.Archive.NameEncoding, err)
		}
		opts = append(opts, ipf.WithNameEncoding(enc))
	}

	c, err := e.newCache()
	if err != nil {
		return nil, err
	}
	if c != nil {
		opts = append(opts, ipf.WithCache(c))
	}
	return opts, nil
}

func (e *env) newCache() (cache.Cache, error) {
	switch e.cfg.Cache.Type {
	case cacheMemory:
		var opts []memory.Option
		if e.cfg.Cache.MemoryEntries > 0 {
			opts = append(opts, memory.WithEntries(e.cfg.Cache.MemoryEntries))
		}
		return memory.New(append(opts, memory.WithMaxBytes(e.cfg.Cache.MaxBytes))...)
	case cacheDisk:
		return disk.New(e.cfg.Cache.Dir, disk.WithMaxBytes(e.cfg.Cache.MaxBytes))
	default:
		return nil, nil //nolint:nilnil // caching disabled
	}
}
