package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/meigma/ipf"
)

func runInfo(_ context.Context, e *env, args []string) (err error) {
	a, err := e.openArchive(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	info := a.Info()
	w := tabwriter.NewWriter(e.stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintf(w, "name:\t%s\n", info.Name)
	fmt.Fprintf(w, "size:\t%d (%s)\n", info.Size, humanize.IBytes(uint64(info.Size))) //nolint:gosec // sizes are non-negative
	fmt.Fprintf(w, "entries:\t%d\n", info.Count)
	fmt.Fprintf(w, "list offset:\t%d\n", info.ListOffset)
	fmt.Fprintf(w, "magic:\t% x\n", info.Magic[:])
	return w.Flush()
}

func runList(_ context.Context, e *env, args []string) (err error) {
	dir := ipf.RootPath()
	if len(args) > 1 {
		if dir, err = parseArg(args[1]); err != nil {
			return err
		}
	}

	a, err := e.openArchive(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	if !e.flags.long {
		l, err := a.ListEntries(dir, nil)
		if err != nil {
			return err
		}
		for p, err := range l.All() {
			if err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, p)
		}
		return nil
	}

	w := tabwriter.NewWriter(e.stdout, 2, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SIZE\tCOMPRESSED\tOFFSET\t PATH")
	for entry, err := range a.Entries(dir) {
		if err != nil {
			_ = w.Flush()
			return err
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t %s\n", entry.Size, entry.CompressedSize, entry.Offset, entry.AbsPath())
	}
	return w.Flush()
}

func runStat(_ context.Context, e *env, args []string) (err error) {
	p, err := parseArg(args[1])
	if err != nil {
		return err
	}
	a, err := e.openArchive(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	entry, err := a.Lookup(p)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(e.stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintf(w, "path:\t%s\n", entry.AbsPath())
	fmt.Fprintf(w, "size:\t%d (%s)\n", entry.Size, humanize.IBytes(uint64(entry.Size)))
	fmt.Fprintf(w, "compressed:\t%d (%s)\n", entry.CompressedSize, humanize.IBytes(uint64(entry.CompressedSize)))
	fmt.Fprintf(w, "offset:\t%d\n", entry.Offset)
	fmt.Fprintf(w, "crc:\t%08x\n", entry.CRC)
	fmt.Fprintf(w, "fs name:\t%s\n", entry.FSName)
	return w.Flush()
}

func runCat(_ context.Context, e *env, args []string) (err error) {
	p, err := parseArg(args[1])
	if err != nil {
		return err
	}
	a, err := e.openArchive(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	c, err := a.OpenPath(p, ipf.ReadOnly)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, c.Close()) }()

	_, err = io.Copy(e.stdout, c)
	return err
}

func runExtract(ctx context.Context, e *env, args []string) (err error) {
	dir := ipf.RootPath()
	if len(args) > 2 {
		if dir, err = parseArg(args[2]); err != nil {
			return err
		}
	}

	a, err := e.openArchive(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	return a.Extract(ctx, args[1], dir,
		ipf.ExtractWithWorkers(e.cfg.Extract.Workers),
		ipf.ExtractWithOverwrite(e.cfg.Extract.Overwrite))
}

// parseArg parses a virtual path argument. A missing leading slash is
// added, so "ui/icon.png" and "/ui/icon.png" name the same record.
func parseArg(s string) (ipf.Path, error) {
	if s != "" && s[0] != '/' {
		s = ipf.Separator + s
	}
	p, err := ipf.ParsePath(s)
	if err != nil {
		return ipf.Path{}, &usageError{msg: err.Error()}
	}
	return p, nil
}
