package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/etnz/kapytal"
	"github.com/etnz/kapytal/store"
	"github.com/google/subcommands"
)

type initCmd struct {
	currency string
	places   int
	force    bool
}

func (*initCmd) Name() string     { return "init" }
func (*initCmd) Synopsis() string { return "create an empty ledger" }
func (*initCmd) Usage() string {
	return `kpt init -c <currency> [-places <n>] [-force]

  Creates an empty ledger with a single currency, which is the base currency.
  An existing ledger is only replaced with -force, after a backup.

Usage Examples:
$ kpt init -c CZK
`
}

func (c *initCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "EUR", "Base currency code.")
	f.IntVar(&c.places, "places", -1, "Number of decimal places. Defaults to the ISO 4217 value, or 2.")
	f.BoolVar(&c.force, "force", false, "Replace an existing ledger.")
}

func (c *initCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if _, err := os.Stat(a.cfg.Ledger); err == nil && !c.force {
		fmt.Fprintf(os.Stderr, "Error: ledger %q already exists, use -force to replace it\n", a.cfg.Ledger)
		return subcommands.ExitFailure
	}
	places := c.places
	if places < 0 {
		places = kapytal.DefaultPlaces(c.currency)
	}
	rk := kapytal.New(kapytal.WithLogger(a.log))
	if _, err := rk.AddCurrency(c.currency, places); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := rk.SetBaseCurrency(c.currency); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := a.save(rk, "init"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(os.Stderr, "Created ledger %q in %s.\n", a.cfg.Ledger, strings.ToUpper(c.currency))
	return subcommands.ExitSuccess
}

type fmtCmd struct{}

func (*fmtCmd) Name() string     { return "fmt" }
func (*fmtCmd) Synopsis() string { return "validate and rewrite the ledger in its canonical form" }
func (*fmtCmd) Usage() string {
	return `kpt fmt

  Loads the ledger, which validates every entity and transaction, and writes
  it back in its canonical form.

Usage Examples:
$ kpt fmt
`
}

func (*fmtCmd) SetFlags(f *flag.FlagSet) {}

func (*fmtCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run("fmt", func(rk *kapytal.RecordKeeper) error { return nil })
}

type queryCmd struct{}

func (*queryCmd) Name() string     { return "query" }
func (*queryCmd) Synopsis() string { return "evaluate a JSONPath expression against the ledger" }
func (*queryCmd) Usage() string {
	return `kpt query <jsonpath>

  Prints the JSON values selected in the ledger document.

Usage Examples:
$ kpt query '$.currencies[*].code'
$ kpt query '$.transactions[?(@.payee=="Shop")].description'
`
}

func (*queryCmd) SetFlags(f *flag.FlagSet) {}

func (*queryCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a single JSONPath expression is required")
		return subcommands.ExitUsageError
	}
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	rk, err := a.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	v, err := rk.Query(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// openBackups opens the backup store, which must exist.
func (a *app) openBackups() (*store.Store, error) {
	if a.cfg.Backups.Path == "" {
		return nil, errors.New("backups are disabled")
	}
	if _, err := os.Stat(a.cfg.Backups.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no backups in %q", a.cfg.Backups.Path)
	}
	return store.Open(a.cfg.Backups.Path)
}

type backupsCmd struct{}

func (*backupsCmd) Name() string     { return "backups" }
func (*backupsCmd) Synopsis() string { return "list the ledger backups" }
func (*backupsCmd) Usage() string {
	return `kpt backups

  Lists the snapshots of the ledger saved before every change, oldest first.

Usage Examples:
$ kpt backups
`
}

func (*backupsCmd) SetFlags(f *flag.FlagSet) {}

func (*backupsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	s, err := a.openBackups()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()
	snapshots, err := s.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	var md strings.Builder
	md.WriteString("# Backups\n\n")
	if len(snapshots) == 0 {
		md.WriteString("No backups.\n")
	} else {
		md.WriteString("| Id | Time | Before | Size |\n|---:|---|---|---:|\n")
		for _, snap := range snapshots {
			fmt.Fprintf(&md, "| %d | %s | %s | %d |\n", snap.ID, snap.Time.Local().Format("2006-01-02 15:04:05"), snap.Reason, snap.Size)
		}
	}
	printMarkdown(md.String())
	return subcommands.ExitSuccess
}

type restoreCmd struct{}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "restore the ledger from a backup" }
func (*restoreCmd) Usage() string {
	return `kpt restore [<id>]

  Replaces the ledger with a backup, the latest one by default. The current
  ledger is backed up first, so a restore can be undone.

Usage Examples:
$ kpt restore
$ kpt restore 12
`
}

func (*restoreCmd) SetFlags(f *flag.FlagSet) {}

func (*restoreCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Error: too many arguments")
		return subcommands.ExitUsageError
	}
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := a.restore(f.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// restore replaces the ledger with the snapshot id, the latest one when empty.
func (a *app) restore(id string) error {
	s, err := a.openBackups()
	if err != nil {
		return err
	}
	var snap store.Snapshot
	if id == "" {
		snap, err = s.Latest()
	} else {
		var n uint64
		if n, err = strconv.ParseUint(id, 10, 64); err != nil {
			s.Close()
			return fmt.Errorf("invalid backup id %q", id)
		}
		snap.ID = n
	}
	if err != nil {
		s.Close()
		return err
	}
	doc, err := s.Load(snap.ID)
	// bbolt holds an exclusive lock, released before write backs up the ledger.
	s.Close()
	if err != nil {
		return err
	}
	if _, err := a.decode(strings.NewReader(string(doc))); err != nil {
		return fmt.Errorf("backup %d is not a valid ledger: %w", snap.ID, err)
	}
	return a.write(doc, fmt.Sprintf("restore %d", snap.ID))
}
