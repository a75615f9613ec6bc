package cmd

import (
	"flag"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/google/subcommands"
)

func newCommander() *subcommands.Commander {
	c := subcommands.NewCommander(flag.NewFlagSet("kpt", flag.ContinueOnError), "kpt")
	Register(c)
	return c
}

func TestCompletion(t *testing.T) {
	root := Completion(newCommander())
	for _, name := range []string{"init", "expense", "income", "buy", "untag", "balance", "topic"} {
		if _, ok := root.Sub[name]; !ok {
			t.Errorf("Completion() has no %q command", name)
		}
	}
	expense := root.Sub["expense"]
	for _, f := range []string{"a", "p", "c", "t", "d", "m"} {
		if _, ok := expense.Flags[f]; !ok {
			t.Errorf("Completion() expense has no -%s flag", f)
		}
	}
	if _, ok := root.Flags["ledger"]; !ok {
		t.Error("Completion() has no global -ledger flag")
	}
}

func TestRegistered(t *testing.T) {
	c := newCommander()
	if !Registered(c, "move-shares") {
		t.Error("Registered(move-shares) = false, want true")
	}
	if Registered(c, "hello") {
		t.Error("Registered(hello) = true, want false")
	}
}

// Every "$ kpt <name>" line of a usage text names a registered command.
func TestUsageExamples(t *testing.T) {
	c := newCommander()
	example := regexp.MustCompile(`(?m)^\$ kpt ([a-z-]+)`)
	c.VisitCommands(func(_ *subcommands.CommandGroup, cmd subcommands.Command) {
		for _, m := range example.FindAllStringSubmatch(cmd.Usage(), -1) {
			if !Registered(c, m[1]) {
				t.Errorf("%s usage example names unknown command %q", cmd.Name(), m[1])
			}
			if m[1] != cmd.Name() {
				t.Errorf("%s usage example runs %q", cmd.Name(), m[1])
			}
		}
	})
}

func TestTopicCommand(t *testing.T) {
	setGlobals(t, filepath.Join(t.TempDir(), "ledger.json"))

	list := strings.Fields(mustExecute(t, &topicCmd{}, "-list"))
	if !slices.Contains(list, "refunds") || slices.Contains(list, "readme") {
		t.Errorf("kpt topic -list = %v, want the topics without the index", list)
	}
	if out := mustExecute(t, &topicCmd{}, "refunds"); !strings.HasPrefix(out, "# ") {
		t.Errorf("kpt topic refunds = %q, want a markdown document", out)
	}
	if _, status := execute(t, &topicCmd{}, "nope"); status != subcommands.ExitFailure {
		t.Errorf("kpt topic nope = %v, want failure", status)
	}
}
