package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunExtension(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\n" +
		"echo args=$*\n" +
		"echo ledger=$" + EnvLedger + "\n" +
		"echo keep=$" + EnvKeepBackups + "\n" +
		"exit 3\n"
	if err := os.WriteFile(filepath.Join(dir, "kpt-hello"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv(EnvKeepBackups, "7")

	ledger := filepath.Join(dir, "books.json")
	setGlobals(t, ledger)
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	found, code := RunExtension("hello", []string{"a", "b"})
	if !found {
		t.Fatal("RunExtension(hello) found = false, want true")
	}
	if code != 3 {
		t.Errorf("RunExtension(hello) code = %d, want 3", code)
	}
	for _, want := range []string{"args=a b", "ledger=" + ledger, "keep=7"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("RunExtension(hello) output = %q, want it to contain %q", out.String(), want)
		}
	}

	if found, _ := RunExtension("missing", nil); found {
		t.Error("RunExtension(missing) found = true, want false")
	}
}
