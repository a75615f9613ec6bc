// Package cmd implements the kpt command line application to keep a ledger.
package cmd

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/kapytal"
	"github.com/etnz/kapytal/store"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&initCmd{}, "ledger")
	c.Register(&fmtCmd{}, "ledger")
	c.Register(&queryCmd{}, "ledger")
	c.Register(&backupsCmd{}, "ledger")
	c.Register(&restoreCmd{}, "ledger")

	c.Register(&currencyCmd{}, "setup")
	c.Register(&rateCmd{}, "setup")
	c.Register(&securityCmd{}, "setup")
	c.Register(&priceCmd{}, "setup")
	c.Register(&groupCmd{}, "setup")
	c.Register(&accountCmd{}, "setup")
	c.Register(&categoryCmd{}, "setup")
	c.Register(&moveCmd{}, "setup")
	c.Register(&renameCmd{}, "setup")
	c.Register(&removeCmd{}, "setup")

	c.Register(&cashTxCmd{typ: kapytal.ExpenseTransaction}, "transactions")
	c.Register(&cashTxCmd{typ: kapytal.IncomeTransaction}, "transactions")
	c.Register(&refundCmd{}, "transactions")
	c.Register(&transferCmd{}, "transactions")
	c.Register(&securityTxCmd{typ: kapytal.Buy}, "transactions")
	c.Register(&securityTxCmd{typ: kapytal.Sell}, "transactions")
	c.Register(&securityTxCmd{typ: kapytal.Dividend}, "transactions")
	c.Register(&moveSharesCmd{}, "transactions")
	c.Register(&tagCmd{add: true}, "transactions")
	c.Register(&tagCmd{add: false}, "transactions")
	c.Register(&editCmd{}, "transactions")

	c.Register(&balanceCmd{}, "reports")
	c.Register(&historyCmd{}, "reports")
	c.Register(&logCmd{}, "reports")
	c.Register(&categoriesCmd{}, "reports")

	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	configFile = flag.String("config", "kapytal.yaml", "Path to the configuration file")
	envFile    = flag.String("env", ".env", "Path to an optional .env file")
	ledgerFile = flag.String("ledger", "", "Path to the ledger document. Overrides the configuration.")
	Verbose    = flag.Bool("v", false, "Log debug events")
	rawOutput  = flag.Bool("raw", false, "Print markdown without terminal styling")
)

// stdout is where commands print their results.
var stdout io.Writer = os.Stdout

// config returns the configuration with the global flags applied.
func config() (Config, error) {
	cfg, err := LoadConfig(*configFile, *envFile)
	if err != nil {
		return cfg, err
	}
	if *ledgerFile != "" {
		cfg.Ledger = *ledgerFile
	}
	if *Verbose {
		cfg.LogLevel = zerolog.DebugLevel.String()
	}
	return cfg, nil
}

// newLogger returns a console logger writing to w.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

// app is the state shared by the commands operating on a ledger.
type app struct {
	cfg Config
	log zerolog.Logger
}

func newApp() (*app, error) {
	cfg, err := config()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: newLogger(os.Stderr, cfg.LogLevel)}, nil
}

// open decodes the ledger document.
func (a *app) open() (*kapytal.RecordKeeper, error) {
	f, err := os.Open(a.cfg.Ledger)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ledger %q does not exist, run 'kpt init' first", a.cfg.Ledger)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.decode(f)
}

func (a *app) decode(r io.Reader) (*kapytal.RecordKeeper, error) {
	progress := func(p int) { a.log.Debug().Int("percent", p).Msg("loading ledger") }
	rk, err := kapytal.Decode(r, progress, kapytal.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("ledger %q: %w", a.cfg.Ledger, err)
	}
	return rk, nil
}

// save encodes rk in the ledger document, after a backup of its current content.
func (a *app) save(rk *kapytal.RecordKeeper, reason string) error {
	var buf bytes.Buffer
	if err := rk.Encode(&buf, nil); err != nil {
		return err
	}
	return a.write(buf.Bytes(), reason)
}

// write replaces the ledger document with doc.
func (a *app) write(doc []byte, reason string) error {
	if err := a.backup(reason); err != nil {
		return err
	}
	dir := filepath.Dir(a.cfg.Ledger)
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), a.cfg.Ledger); err != nil {
		return err
	}
	a.log.Info().Str("ledger", a.cfg.Ledger).Str("reason", reason).Int("bytes", len(doc)).Msg("ledger saved")
	return nil
}

// backup saves the current ledger document, if any, in the backup store.
func (a *app) backup(reason string) error {
	if a.cfg.Backups.Path == "" {
		return nil
	}
	current, err := os.ReadFile(a.cfg.Ledger)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	s, err := store.Open(a.cfg.Backups.Path)
	if err != nil {
		return err
	}
	defer s.Close()
	snap, err := s.Save(current, reason)
	if err != nil {
		return fmt.Errorf("failed to backup the ledger: %w", err)
	}
	pruned, err := s.Prune(a.cfg.Backups.Keep)
	if err != nil {
		return err
	}
	a.log.Debug().Uint64("snapshot", snap.ID).Int("pruned", pruned).Msg("ledger backed up")
	return nil
}

// update opens the ledger, applies change and saves it.
func (a *app) update(reason string, change func(rk *kapytal.RecordKeeper) error) error {
	rk, err := a.open()
	if err != nil {
		return err
	}
	if err := change(rk); err != nil {
		return err
	}
	return a.save(rk, reason)
}

// run is the common body of the commands changing the ledger.
func run(reason string, change func(rk *kapytal.RecordKeeper) error) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := a.update(reason, change); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// report is the common body of the read only commands.
func report(render func(rk *kapytal.RecordKeeper) (string, error)) subcommands.ExitStatus {
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
	md, err := render(rk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(md)
	return subcommands.ExitSuccess
}

// printMarkdown prints md styled for the terminal, unless -raw is set.
func printMarkdown(md string) {
	if *rawOutput {
		fmt.Fprint(stdout, md)
		return
	}
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	fmt.Fprint(stdout, out)
}
