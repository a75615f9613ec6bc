package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/google/subcommands"
)

// ExtensionPrefix prefixes the name of the external kpt-<subcommand> binaries.
const ExtensionPrefix = "kpt-"

// RunExtension attempts to find and execute an external kpt-<subcommand> binary.
// It returns (true, exitCode) if an extension was found and executed,
// and (false, 0) if no extension was found.
//
// The resolved configuration is passed down as KAPYTAL_* environment
// variables, so that extensions work on the same ledger.
func RunExtension(subcommand string, args []string) (bool, int) {
	name := ExtensionPrefix + subcommand
	lp, err := exec.LookPath(name)
	if err != nil {
		return false, 0
	}

	cfg, err := config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return true, int(subcommands.ExitFailure)
	}
	c := exec.Command(lp, args...)
	c.Stdin = os.Stdin
	c.Stdout = stdout
	c.Stderr = os.Stderr
	c.Env = append(os.Environ(),
		EnvLedger+"="+cfg.Ledger,
		EnvBackups+"="+cfg.Backups.Path,
		EnvKeepBackups+"="+strconv.Itoa(cfg.Backups.Keep),
		EnvLogLevel+"="+cfg.LogLevel,
	)

	if err := c.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return true, exitError.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Error executing external command %q: %v\n", name, err)
		return true, 1
	}
	return true, 0
}
