package soak

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append %s: %v", path, err)
	}
}

func TestCounters_Ingest(t *testing.T) {
	t.Parallel()

	var c Counters
	lines := []string{
		`{"event":"wake_detected","score":0.91,"timestamp":1}`,
		`{"event":"interaction_complete","total_elapsed_s":2.5,"timestamp":2}`,
		`{"event":"interaction_complete","total_elapsed_s":4.0,"timestamp":3}`,
		`{"event":"pipeline_error","stage":"llm","timestamp":4}`,
		`{"event":"listening_timeout","timestamp":5}`,
		`{"event":"barge_in","timestamp":6}`,
		`{"event":"audio_frame_drop","dropped_frames":7,"timestamp":7}`,
		`{"event":"audio_frame_drop","dropped_frames":3,"timestamp":8}`,
		`{"event":"stt_complete","timestamp":9}`,
	}
	for _, l := range lines {
		c.ingest([]byte(l))
	}

	if c.WakeEvents != 1 || c.Interactions != 2 || c.PipelineErrors != 1 ||
		c.ListeningTimeouts != 1 || c.BargeIns != 1 {
		t.Errorf("counters = %+v", c)
	}
	if c.AudioFrameDrops != 10 {
		t.Errorf("frame drops = %d, want summed 10", c.AudioFrameDrops)
	}
	if len(c.Latencies) != 2 || c.Latencies[1] != 4.0 {
		t.Errorf("latencies = %v", c.Latencies)
	}
}

func TestCounters_IngestSkipsMalformed(t *testing.T) {
	t.Parallel()

	var c Counters
	c.ingest([]byte(`{"event":"wake_detected"`))
	c.ingest([]byte(`not json at all`))
	c.ingest([]byte(``))
	c.ingest([]byte(`{"event":"wake_detected"}`))

	if c.WakeEvents != 1 {
		t.Errorf("wake events = %d, want 1 (malformed lines skipped)", c.WakeEvents)
	}
}

func TestCounters_TailFromOffset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	writeFile(t, path, `{"event":"wake_detected"}`+"\n")

	var c Counters
	offset, err := c.Tail(path, 0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if c.WakeEvents != 1 {
		t.Fatalf("wake events = %d", c.WakeEvents)
	}

	// Nothing new: offset is stable.
	offset2, err := c.Tail(path, offset)
	if err != nil || offset2 != offset {
		t.Fatalf("re-tail moved offset: %d -> %d (%v)", offset, offset2, err)
	}

	// Appended events are picked up from the saved offset only.
	appendFile(t, path, `{"event":"interaction_complete","total_elapsed_s":1.5}`+"\n")
	if _, err := c.Tail(path, offset2); err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if c.WakeEvents != 1 || c.Interactions != 1 {
		t.Errorf("counters after append = %+v", c)
	}
}

func TestCounters_TailLeavesPartialLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	writeFile(t, path, `{"event":"wake_detected"}`+"\n"+`{"event":"barge`)

	var c Counters
	offset, err := c.Tail(path, 0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if c.WakeEvents != 1 || c.BargeIns != 0 {
		t.Errorf("counters = %+v, partial line must wait", c)
	}

	// Completing the line delivers it on the next poll.
	appendFile(t, path, `_in"}`+"\n")
	if _, err := c.Tail(path, offset); err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if c.BargeIns != 1 {
		t.Errorf("barge ins = %d, want 1 after line completes", c.BargeIns)
	}
}

func TestCounters_TailMissingFile(t *testing.T) {
	t.Parallel()

	var c Counters
	offset, err := c.Tail(filepath.Join(t.TempDir(), "absent.jsonl"), 0)
	if err != nil || offset != 0 {
		t.Errorf("missing file should be tolerated, got offset %d, err %v", offset, err)
	}
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{50, 5.5},
		{95, 9.55},
		{99, 9.91},
		{100, 10},
	}
	for _, tt := range tests {
		if got := Percentile(values, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if got := Percentile(nil, 95); got != 0 {
		t.Errorf("empty percentile = %v, want 0", got)
	}
	if got := Percentile([]float64{3.2}, 95); got != 3.2 {
		t.Errorf("single-value percentile = %v, want 3.2", got)
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	healthy := Counters{
		Interactions: 10,
		Latencies:    []float64{1, 1.5, 2, 2.5, 3},
	}
	if v := Evaluate(&healthy, DefaultThresholds()); len(v) != 0 {
		t.Errorf("healthy run flagged: %v", v)
	}

	tests := []struct {
		name   string
		mutate func(*Counters)
		want   string
	}{
		{
			name:   "too few interactions",
			mutate: func(c *Counters) { c.Interactions = 2 },
			want:   "interactions",
		},
		{
			name:   "pipeline errors",
			mutate: func(c *Counters) { c.PipelineErrors = 1 },
			want:   "pipeline errors",
		},
		{
			name:   "listening timeouts",
			mutate: func(c *Counters) { c.ListeningTimeouts = 51 },
			want:   "listening timeouts",
		},
		{
			name:   "frame drops",
			mutate: func(c *Counters) { c.AudioFrameDrops = 2001 },
			want:   "dropped audio frames",
		},
		{
			name:   "slow p95",
			mutate: func(c *Counters) { c.Latencies = []float64{12, 13, 14, 15, 16} },
			want:   "p95 latency",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := healthy
			c.Latencies = append([]float64(nil), healthy.Latencies...)
			tt.mutate(&c)
			v := Evaluate(&c, DefaultThresholds())
			if len(v) != 1 || !strings.Contains(v[0], tt.want) {
				t.Errorf("violations = %v, want one mentioning %q", v, tt.want)
			}
		})
	}
}

func TestMonitor_SkipsExistingByDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	writeFile(t, path, `{"event":"wake_detected"}`+"\n")

	m, err := NewMonitor(MonitorConfig{MetricsPath: path})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	m.poll()
	if m.Counters().WakeEvents != 0 {
		t.Error("pre-existing events were counted without IncludeExisting")
	}

	appendFile(t, path, `{"event":"wake_detected"}`+"\n")
	m.poll()
	if m.Counters().WakeEvents != 1 {
		t.Errorf("wake events = %d, want only the fresh one", m.Counters().WakeEvents)
	}
}

func TestMonitor_IncludeExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	writeFile(t, path, `{"event":"wake_detected"}`+"\n")

	m, err := NewMonitor(MonitorConfig{MetricsPath: path, IncludeExisting: true})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	m.poll()
	if m.Counters().WakeEvents != 1 {
		t.Errorf("wake events = %d, want the existing one counted", m.Counters().WakeEvents)
	}
}
