// Package soak monitors a long-running assistant session: it tails the
// JSONL telemetry log, accumulates interaction counters and latencies, and
// judges the run against configurable thresholds.
package soak

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
)

// event is the subset of a telemetry line the monitor cares about.
type event struct {
	Event         string  `json:"event"`
	TotalElapsedS float64 `json:"total_elapsed_s"`
	DroppedFrames int64   `json:"dropped_frames"`
}

// Counters accumulates telemetry over the monitored window.
type Counters struct {
	WakeEvents        int64
	Interactions      int64
	PipelineErrors    int64
	ListeningTimeouts int64
	BargeIns          int64
	AudioFrameDrops   int64

	// Latencies holds total_elapsed_s of every completed interaction.
	Latencies []float64
}

// ingest applies one telemetry line to the counters. Malformed lines are
// skipped; a soak run must survive a torn write.
func (c *Counters) ingest(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var ev event
	if err := json.Unmarshal(line, &ev); err != nil {
		slog.Debug("skipping malformed telemetry line", "error", err)
		return
	}

	switch ev.Event {
	case "wake_detected":
		c.WakeEvents++
	case "interaction_complete":
		c.Interactions++
		c.Latencies = append(c.Latencies, ev.TotalElapsedS)
	case "pipeline_error":
		c.PipelineErrors++
	case "listening_timeout":
		c.ListeningTimeouts++
	case "barge_in":
		c.BargeIns++
	case "audio_frame_drop":
		c.AudioFrameDrops += ev.DroppedFrames
	}
}

// Tail reads complete lines appended to path since offset, feeding each to
// the counters, and returns the new offset. A partial trailing line is left
// for the next poll. A missing file is not an error; the assistant may not
// have written anything yet.
func (c *Counters) Tail(path string, offset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return offset, nil
		}
		return offset, fmt.Errorf("soak: open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return offset, fmt.Errorf("soak: stat %q: %w", path, err)
	}
	if info.Size() < offset {
		// Truncated or rotated; start over.
		slog.Warn("telemetry log shrank, re-reading from the start", "path", path)
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("soak: seek %q: %w", path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return offset, fmt.Errorf("soak: read %q: %w", path, err)
	}

	consumed := 0
	for {
		nl := bytes.IndexByte(data[consumed:], '\n')
		if nl < 0 {
			break
		}
		c.ingest(data[consumed : consumed+nl])
		consumed += nl + 1
	}
	return offset + int64(consumed), nil
}

// Percentile returns the p-th percentile (0 < p <= 100) of values using
// linear interpolation between closest ranks. It returns 0 for an empty
// input.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// Thresholds are the pass criteria for a soak run.
type Thresholds struct {
	MinInteractions      int64
	MaxPipelineErrors    int64
	MaxListeningTimeouts int64
	MaxAudioFrameDrops   int64
	MaxP95LatencyS       float64
}

// DefaultThresholds returns the standard overnight-run criteria.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinInteractions:      3,
		MaxPipelineErrors:    0,
		MaxListeningTimeouts: 50,
		MaxAudioFrameDrops:   2000,
		MaxP95LatencyS:       10.0,
	}
}

// Evaluate checks the counters against the thresholds and returns one
// message per violation. An empty slice means the run passed.
func Evaluate(c *Counters, th Thresholds) []string {
	var violations []string

	if c.Interactions < th.MinInteractions {
		violations = append(violations, fmt.Sprintf(
			"interactions %d below minimum %d", c.Interactions, th.MinInteractions))
	}
	if c.PipelineErrors > th.MaxPipelineErrors {
		violations = append(violations, fmt.Sprintf(
			"pipeline errors %d exceed maximum %d", c.PipelineErrors, th.MaxPipelineErrors))
	}
	if c.ListeningTimeouts > th.MaxListeningTimeouts {
		violations = append(violations, fmt.Sprintf(
			"listening timeouts %d exceed maximum %d", c.ListeningTimeouts, th.MaxListeningTimeouts))
	}
	if c.AudioFrameDrops > th.MaxAudioFrameDrops {
		violations = append(violations, fmt.Sprintf(
			"dropped audio frames %d exceed maximum %d", c.AudioFrameDrops, th.MaxAudioFrameDrops))
	}
	if p95 := Percentile(c.Latencies, 95); p95 > th.MaxP95LatencyS {
		violations = append(violations, fmt.Sprintf(
			"p95 latency %.2fs exceeds maximum %.2fs", p95, th.MaxP95LatencyS))
	}
	return violations
}

// Summary formats the counters and latency percentiles for a status line.
func Summary(c *Counters) string {
	return fmt.Sprintf(
		"wake=%d interactions=%d errors=%d timeouts=%d barge_ins=%d frame_drops=%d p50=%.2fs p95=%.2fs p99=%.2fs",
		c.WakeEvents, c.Interactions, c.PipelineErrors, c.ListeningTimeouts,
		c.BargeIns, c.AudioFrameDrops,
		Percentile(c.Latencies, 50), Percentile(c.Latencies, 95), Percentile(c.Latencies, 99),
	)
}
