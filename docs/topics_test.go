package docs

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/etnz/kapytal"
	"github.com/google/go-cmp/cmp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fenced block kinds the topics use to describe scenarios.
//
//	bash setup     starts a scenario in a new folder
//	bash run       runs commands and keeps their output
//	console check  compares the output of the last run
//	bash check     runs commands that must succeed
//	ledger check   "<jsonpath> = <json>" lines checked against ledger.json
const (
	bashSetup    = "bash setup"
	bashRun      = "bash run"
	consoleCheck = "console check"
	bashCheck    = "bash check"
	ledgerCheck  = "ledger check"
)

func TestTopics(t *testing.T) {
	// Every .md file is listed in readme.md as "* <topic>: <summary>".
	content, err := os.ReadFile("readme.md")
	if err != nil {
		t.Fatal(err)
	}
	var listed []string
	for _, m := range regexp.MustCompile(`(?m)^\*\s+([^:]+):`).FindAllStringSubmatch(string(content), -1) {
		listed = append(listed, strings.TrimSpace(m[1]))
	}
	sort.Strings(listed)

	all, err := GetAllTopics()
	if err != nil {
		t.Fatalf("GetAllTopics() error = %v", err)
	}
	if diff := cmp.Diff(all, listed); diff != "" {
		t.Errorf("topics listed in readme.md mismatch (-files +listed):\n%s", diff)
	}
	for _, topic := range listed {
		if _, err := GetTopic(topic); err != nil {
			t.Errorf("GetTopic(%q) error = %v", topic, err)
		}
	}
	if _, err := GetTopic("nope"); err == nil {
		t.Error(`GetTopic("nope") error = nil, want an error`)
	}
}

func TestCodeBlocks(t *testing.T) {
	files, err := filepath.Glob("*.md")
	if err != nil {
		t.Fatal(err)
	}
	files = append(files, "../README.md")

	kpt := buildKpt(t, t.TempDir())
	env := scenarioEnv(filepath.Dir(kpt))
	for _, file := range files {
		t.Run(file, func(t *testing.T) {
			steps := readSteps(t, file)
			if len(steps) == 0 {
				return
			}
			s := &scenario{env: env, dir: t.TempDir()}
			for _, st := range steps {
				s.play(t, st)
			}
		})
	}
}

// step is a fenced block of a topic, located in its file.
type step struct {
	kind   string
	script string
	where  string // file:line
}

// buildKpt builds the kpt executable in tmp and returns its path.
func buildKpt(t *testing.T, tmp string) string {
	t.Helper()
	output := filepath.Join(tmp, "kpt")
	out, err := exec.Command("go", "build", "-o", output, "../kpt/").CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build kpt: %v\n%s", err, out)
	}
	return output
}

// scenarioEnv is the environment with kpt first in PATH, no KAPYTAL_*
// variable and a fixed time zone.
func scenarioEnv(kptDir string) []string {
	env := []string{"PATH=" + kptDir + string(os.PathListSeparator) + os.Getenv("PATH"), "TZ=UTC"}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "KAPYTAL_") && !strings.HasPrefix(kv, "PATH=") && !strings.HasPrefix(kv, "TZ=") {
			env = append(env, kv)
		}
	}
	return env
}

// readSteps returns the scenario blocks of a markdown file in order.
func readSteps(t *testing.T, file string) []step {
	t.Helper()
	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var steps []step
	root := goldmark.DefaultParser().Parse(text.NewReader(content))
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !entering || !ok || fcb.Info == nil {
			return ast.WalkContinue, nil
		}
		kind := string(fcb.Info.Segment.Value(content))
		switch kind {
		case bashSetup, bashRun, consoleCheck, bashCheck, ledgerCheck:
		default:
			return ast.WalkSkipChildren, nil
		}
		var script bytes.Buffer
		for i := range fcb.Lines().Len() {
			seg := fcb.Lines().At(i)
			script.Write(seg.Value(content))
		}
		line := bytes.Count(content[:fcb.Info.Segment.Start], []byte{'\n'}) + 1
		steps = append(steps, step{kind: kind, script: script.String(), where: file + ":" + strconv.Itoa(line)})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return steps
}

// scenario is the state shared by the steps following a bash setup.
type scenario struct {
	env    []string
	dir    string
	output string // of the last bash run
}

func (s *scenario) play(t *testing.T, st step) {
	t.Helper()
	switch st.kind {
	case consoleCheck:
		want := strings.TrimSpace(st.script)
		got := strings.TrimSpace(strings.ReplaceAll(s.output, "\t", "        "))
		if got != want {
			t.Errorf("%s: output mismatch:\ngot:\n\n%s\n\nwant:\n\n%s\n\ngot :%q\nwant:%q", st.where, got, want, got, want)
		}
		return
	case ledgerCheck:
		s.checkLedger(t, st)
		return
	case bashSetup:
		s.dir = t.TempDir()
	}

	cmd := exec.Command("bash", "-c", "set -e; "+st.script)
	cmd.Dir = s.dir
	cmd.Env = s.env
	output, err := cmd.CombinedOutput()
	if st.kind == bashRun {
		s.output = string(output)
	}
	if err != nil {
		if st.kind == bashCheck {
			t.Errorf("%s: %s failed: %v with output:\n%s", st.where, st.kind, err, output)
			return
		}
		t.Fatalf("%s: %s failed: %v with output:\n%s", st.where, st.kind, err, output)
	}
	// Whatever the commands did, the ledger left behind must load.
	if _, err := s.ledger(); err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Errorf("%s: ledger does not load after %s: %v", st.where, st.kind, err)
	}
}

// ledger decodes the scenario's ledger.json.
func (s *scenario) ledger() (*kapytal.RecordKeeper, error) {
	f, err := os.Open(filepath.Join(s.dir, "ledger.json"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return kapytal.Decode(f, nil)
}

// checkLedger evaluates each "<jsonpath> = <json>" line of st on the ledger.
func (s *scenario) checkLedger(t *testing.T, st step) {
	t.Helper()
	rk, err := s.ledger()
	if err != nil {
		t.Fatalf("%s: %v", st.where, err)
	}
	for _, line := range strings.Split(strings.TrimSpace(st.script), "\n") {
		path, value, ok := strings.Cut(line, " = ")
		if !ok {
			t.Fatalf("%s: %q is not <jsonpath> = <json>", st.where, line)
		}
		var want any
		if err := json.Unmarshal([]byte(value), &want); err != nil {
			t.Fatalf("%s: %q: %v", st.where, value, err)
		}
		got, err := rk.Query(strings.TrimSpace(path))
		if err != nil {
			t.Errorf("%s: %v", st.where, err)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: Query(%s) mismatch (-want +got):\n%s", st.where, path, diff)
		}
	}
}
