// Command skald-soak supervises a long-running assistant session. It tails
// the JSONL telemetry log, optionally launches the assistant as a child
// process, and exits non-zero when the run violates the stability
// thresholds.
//
// Usage:
//
//	skald-soak --metrics metrics.jsonl
//	skald-soak --metrics metrics.jsonl -- ./skald-client --config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skald-ai/skald/internal/soak"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	metricsPath := flag.String("metrics", "metrics.jsonl", "JSONL telemetry file to tail")
	pollS := flag.Float64("poll-s", 1.0, "telemetry poll interval in seconds")
	statusEveryS := flag.Float64("status-every-s", 30.0, "status log interval in seconds")
	includeExisting := flag.Bool("include-existing", false, "count events already in the file at start")

	defaults := soak.DefaultThresholds()
	minInteractions := flag.Int64("min-interactions", defaults.MinInteractions, "minimum completed interactions for a pass")
	maxPipelineErrors := flag.Int64("max-pipeline-errors", defaults.MaxPipelineErrors, "maximum tolerated pipeline errors")
	maxListeningTimeouts := flag.Int64("max-listening-timeouts", defaults.MaxListeningTimeouts, "maximum tolerated listening timeouts")
	maxFrameDrops := flag.Int64("max-audio-frame-drops", defaults.MaxAudioFrameDrops, "maximum tolerated dropped audio frames")
	maxP95 := flag.Float64("max-p95-latency-s", defaults.MaxP95LatencyS, "maximum p95 interaction latency in seconds")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	monitor, err := soak.NewMonitor(soak.MonitorConfig{
		MetricsPath:     *metricsPath,
		PollInterval:    seconds(*pollS),
		StatusEvery:     seconds(*statusEveryS),
		IncludeExisting: *includeExisting,
		Thresholds: soak.Thresholds{
			MinInteractions:      *minInteractions,
			MaxPipelineErrors:    *maxPipelineErrors,
			MaxListeningTimeouts: *maxListeningTimeouts,
			MaxAudioFrameDrops:   *maxFrameDrops,
			MaxP95LatencyS:       *maxP95,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "skald-soak: %v\n", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Child process (optional) ──────────────────────────────────────────────
	// Everything after "--" is the command to run under supervision.
	var child *soak.ChildProcess
	if argv := flag.Args(); len(argv) > 0 {
		child, err = soak.StartChild(argv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skald-soak: %v\n", err)
			return 1
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	childExited := make(chan struct{})
	if child != nil {
		go func() {
			select {
			case err := <-child.Done():
				if err != nil {
					slog.Error("child process exited", "err", err)
				} else {
					slog.Info("child process exited")
				}
				close(childExited)
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	violations := monitor.Run(runCtx)
	cancel()

	if child != nil && !closed(childExited) {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := child.Stop(stopCtx); err != nil {
			slog.Warn("child shutdown", "err", err)
		}
	}

	// ── Verdict ───────────────────────────────────────────────────────────────
	fmt.Println(soak.Summary(monitor.Counters()))
	if len(violations) > 0 {
		fmt.Println("FAIL")
		for _, v := range violations {
			fmt.Println("  - " + v)
		}
		return 1
	}
	fmt.Println("PASS")
	return 0
}

// seconds converts a float second count to a Duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// closed reports whether ch has been closed without blocking.
func closed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
