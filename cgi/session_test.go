package cgi

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pmolzer/webserv/ioprim"
)

func skipIfNoPython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

// writeEchoScript installs a script under dir that copies stdin to
// stdout, standing in for the scenario 4 CGI echo script.
func writeEchoScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "echo.py")
	src := "import sys\nsys.stdout.write(sys.stdin.read())\n"
	if err := os.WriteFile(path, []byte(src), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSessionEchoesBody(t *testing.T) {
	skipIfNoPython3(t)
	dir := t.TempDir()
	script := writeEchoScript(t, dir)

	sess, err := Start(script, []string{"PATH=" + os.Getenv("PATH")}, []byte("hello world"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !sess.Expired(deadline) {
		if done, outcome := sess.WriteInput(); outcome == ioprim.Error {
			t.Fatalf("write error")
		} else if done {
			break
		}
	}
	if err := sess.CloseInput(); err != nil {
		t.Fatalf("CloseInput: %v", err)
	}

	var collected []byte
	for time.Now().Before(deadline) {
		outcome := sess.ReadOutput()
		if outcome == ioprim.Closed {
			break
		}
		if outcome == ioprim.Error {
			t.Fatalf("read error")
		}
		time.Sleep(5 * time.Millisecond)
	}
	collected = sess.Output()

	if string(collected) != "hello world" {
		t.Fatalf("unexpected CGI output: %q", collected)
	}
	exitedCleanly := sess.Reap()
	if !exitedCleanly {
		// The child may not have finished exiting the instant its
		// pipe closed; Reap's own WNOHANG wait can race it, in which
		// case the pid was handed to the package-level deferred
		// reaper. Poll that the way the event loop's per-tick sweep
		// would, so this assertion doesn't depend on exact timing.
		deadline2 := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline2) {
			pendingMu.Lock()
			n := len(pendingPids)
			pendingMu.Unlock()
			if n == 0 {
				break
			}
			ReapPending()
			time.Sleep(5 * time.Millisecond)
		}
	}
	if sess.Reap() {
		t.Fatalf("second Reap call must be a no-op, not re-report success")
	}
}

func TestEligibleRequiresExecutableAndExtension(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "app.py")
	if err := os.WriteFile(script, []byte("#!/usr/bin/env python3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if Eligible(script, ".py") {
		t.Fatalf("non-executable script must not be eligible")
	}
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatal(err)
	}
	if !Eligible(script, ".py") {
		t.Fatalf("executable .py script should be eligible")
	}
	if Eligible(script, ".php") {
		t.Fatalf("mismatched extension must not be eligible")
	}
}
