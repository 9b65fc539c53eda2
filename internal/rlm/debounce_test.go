package rlm

import (
	"os"
	"testing"
	"time"
)

// shortWindows shrinks the maintainer's timing for tests.
func shortWindows(m *Maintainer) {
	m.debounce = 20 * time.Millisecond
	m.cooldown = 300 * time.Millisecond
}

func TestMaintainer_DebounceCoalesces(t *testing.T) {
	m, sessions, indexPath := newTestMaintainer(t)
	shortWindows(m)
	file := fiveMessageSession(t, sessions)

	// Three rapid events for the same session coalesce into one update.
	m.HandleTranscriptUpdate(file)
	m.HandleTranscriptUpdate(file)
	m.HandleTranscriptUpdate(file)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if ix, err := LoadIndex(indexPath); err == nil && ix.Sessions["abc123"].LastIndexedLine == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced update never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.mu.Lock()
	pendingLeft := len(m.pending)
	m.mu.Unlock()
	if pendingLeft != 0 {
		t.Errorf("pending entries left = %d, want 0", pendingLeft)
	}
}

func TestMaintainer_CooldownPostpones(t *testing.T) {
	m, sessions, indexPath := newTestMaintainer(t)
	shortWindows(m)
	file := fiveMessageSession(t, sessions)

	m.HandleTranscriptUpdate(file)
	waitForLine(t, indexPath, "abc123", 5)

	// Append and fire again immediately: the cooldown postpones the second
	// run, so shortly after the debounce window the index is unchanged.
	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"role":"user","text":"postscript about retries"}` + "\n")
	f.Close()

	m.HandleTranscriptUpdate(file)
	time.Sleep(80 * time.Millisecond) // past debounce, inside cooldown
	ix, err := LoadIndex(indexPath)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Sessions["abc123"].LastIndexedLine != 5 {
		t.Fatal("update ran inside the cooldown window")
	}

	// After the cooldown elapses the postponed update runs.
	waitForLine(t, indexPath, "abc123", 6)
}

func waitForLine(t *testing.T, indexPath, session string, line int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if ix, err := LoadIndex(indexPath); err == nil && ix.Sessions[session].LastIndexedLine == line {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("index never reached line %d for %s", line, session)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMaintainer_QueueBounded(t *testing.T) {
	m, _, _ := newTestMaintainer(t)
	// Never let timers fire during this test.
	m.debounce = time.Hour

	for i := 0; i < maxPending+10; i++ {
		m.HandleTranscriptUpdate(sessionName(i))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) != maxPending {
		t.Errorf("pending = %d, want %d", len(m.pending), maxPending)
	}
	// The oldest entries were dropped.
	if _, ok := m.pending[SessionIDFromPath(sessionName(0))]; ok {
		t.Error("oldest pending entry should have been dropped")
	}
	if _, ok := m.pending[SessionIDFromPath(sessionName(maxPending+9))]; !ok {
		t.Error("newest entry missing")
	}
}

func sessionName(i int) string {
	return "/tmp/sessions/s" + string(rune('a'+i%26)) + string(rune('0'+(i/26)%10)) + string(rune('0'+i%10)) + ".jsonl"
}
