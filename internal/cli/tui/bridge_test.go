package tui

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/siren/internal/events"
)

// fakeSender collects messages sent to the program
type fakeSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (f *fakeSender) Send(msg tea.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeSender) Msgs() []tea.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tea.Msg(nil), f.msgs...)
}

// waitMsgs polls until n messages arrived
func waitMsgs(t *testing.T, f *fakeSender, n int) []tea.Msg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := f.Msgs(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("got %d messages, want %d", len(f.Msgs()), n)
	return nil
}

func TestBridge_Handler(t *testing.T) {
	sender := &fakeSender{}
	bridge := NewBridge(sender)
	handle := bridge.Handler()

	handle(events.NewEvent(events.SessionTierChanged, "s1"))
	handle(events.NewEvent(events.DaemonConfigReloaded, ""))
	bridge.SendDone()

	msgs := sender.Msgs()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if em, ok := msgs[0].(EventMsg); !ok || em.Event.Session != "s1" {
		t.Errorf("msg 0 = %#v, want EventMsg for s1", msgs[0])
	}
	if lm, ok := msgs[1].(LogMsg); !ok || !strings.Contains(lm.Line, "daemon.config_reloaded") {
		t.Errorf("msg 1 = %#v, want LogMsg", msgs[1])
	}
	if _, ok := msgs[2].(DoneMsg); !ok {
		t.Errorf("msg 2 = %#v, want DoneMsg", msgs[2])
	}
}

func TestLogWriter_SplitsLinesInOrder(t *testing.T) {
	sender := &fakeSender{}
	w := NewLogWriter(sender)
	defer w.Close()

	fmt.Fprint(w, "first\nsec")
	fmt.Fprint(w, "ond\r\n\nthird")
	w.Flush()

	msgs := waitMsgs(t, sender, 3)
	want := []string{"first", "second", "third"}
	for i, line := range want {
		lm, ok := msgs[i].(LogMsg)
		if !ok || lm.Line != line {
			t.Errorf("msg %d = %#v, want %q", i, msgs[i], line)
		}
	}
}

func TestLogWriter_TruncatesLongLines(t *testing.T) {
	sender := &fakeSender{}
	w := NewLogWriter(sender)
	defer w.Close()

	fmt.Fprintln(w, strings.Repeat("x", MaxLogLine+10))

	msgs := waitMsgs(t, sender, 1)
	lm := msgs[0].(LogMsg)
	if len(lm.Line) != MaxLogLine+3 || !strings.HasSuffix(lm.Line, "...") {
		t.Errorf("line length %d, want truncated to %d", len(lm.Line), MaxLogLine+3)
	}
}

func TestLogWriter_WriteAfterClose(t *testing.T) {
	sender := &fakeSender{}
	w := NewLogWriter(sender)
	w.Close()
	w.Close()

	n, err := fmt.Fprintln(w, "dropped")
	if err != nil || n != len("dropped\n") {
		t.Errorf("Write after Close = %d, %v", n, err)
	}
	time.Sleep(10 * time.Millisecond)
	if len(sender.Msgs()) != 0 {
		t.Errorf("unexpected messages %v", sender.Msgs())
	}
}
