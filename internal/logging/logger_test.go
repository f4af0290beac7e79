package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"trace", LevelTrace},
		{"Trace", LevelTrace},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("info", &buf)

	log.Debug("hidden")
	log.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message leaked at info level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("info message missing")
	}
}

func TestNewLoggerTraceLabel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("trace", &buf)

	log.Log(nil, LevelTrace, "per-sample detail")

	if !strings.Contains(buf.String(), "TRACE") {
		t.Errorf("trace output missing TRACE label: %s", buf.String())
	}
}

func TestNewRunLoggerInfoLevel(t *testing.T) {
	dir := t.TempDir()
	if rl := NewRunLogger(dir, "info"); rl != nil {
		t.Error("run logger created at info level, want nil")
	}
	if _, err := os.Stat(filepath.Join(dir, "runs.jsonl")); !os.IsNotExist(err) {
		t.Error("runs.jsonl created at info level")
	}
}

func TestRunLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	rl := NewRunLogger(dir, "debug")
	if rl == nil {
		t.Fatal("NewRunLogger returned nil at debug level")
	}

	rl.Log(ScenarioEvent{Campaign: "c1", Ring: "standard", Fault: "none", Runs: 50, Valid: true, MeanErrorMax: 0.012})
	rl.Log(ScenarioEvent{Campaign: "c1", Ring: "standard", Fault: "one", Runs: 50, Excluded: 2, MeanErrorMax: 0.031})
	rl.Close()

	f, err := os.Open(filepath.Join(dir, "runs.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var events []ScenarioEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev ScenarioEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", len(events)+1, err)
		}
		if ev.Time.IsZero() {
			t.Errorf("line %d missing time stamp", len(events)+1)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("got %d lines, want 2", len(events))
	}
	if events[0].Ring != "standard" || events[0].MeanErrorMax != 0.012 || !events[0].Valid {
		t.Errorf("event 0 round-tripped as %+v", events[0])
	}
	if events[1].Fault != "one" || events[1].Excluded != 2 {
		t.Errorf("event 1 round-tripped as %+v", events[1])
	}
}

func TestRunLoggerNilSafe(t *testing.T) {
	var rl *RunLogger
	rl.Log(ScenarioEvent{Ring: "standard"})
	rl.Close()
}

func TestRunLoggerConcurrent(t *testing.T) {
	rl := NewRunLogger(t.TempDir(), "debug")
	if rl == nil {
		t.Fatal("NewRunLogger returned nil")
	}
	defer rl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				rl.Log(ScenarioEvent{Ring: "standard", Runs: i, Excluded: j})
			}
		}()
	}
	wg.Wait()
}
