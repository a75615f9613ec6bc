// Command kpt keeps a personal finance ledger.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/kapytal/cmd"
	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	// Exits when invoked by the shell completion.
	cmd.Completion(commander).Complete("kpt")

	flag.Parse()
	if name := flag.Arg(0); name != "" && !cmd.Registered(commander, name) {
		if found, code := cmd.RunExtension(name, flag.Args()[1:]); found {
			os.Exit(code)
		}
	}
	os.Exit(int(commander.Execute(context.Background())))
}
