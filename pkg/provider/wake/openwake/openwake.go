// Package openwake provides a wake.Detector backed by an openWakeWord
// scoring sidecar reachable over HTTP. The sidecar keeps the streaming model
// state; this adapter posts raw PCM frames and applies the detection
// threshold to the returned score.
//
// Endpoints:
//
//   - POST /score with a raw little-endian int16 PCM body returns
//     {"score": <float in [0,1]>} for the configured wake model.
//   - POST /reset clears the sidecar's accumulated audio context.
package openwake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skald-ai/skald/pkg/provider/wake"
	"github.com/skald-ai/skald/pkg/wire"
)

// Compile-time interface assertion.
var _ wake.Detector = (*Detector)(nil)

const (
	defaultTimeout = 2 * time.Second

	scoreEndpoint = "/score"
	resetEndpoint = "/reset"
)

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithTimeout sets the per-request HTTP timeout. Defaults to 2 s; scoring
// runs at frame cadence, so keep this short.
func WithTimeout(d time.Duration) Option {
	return func(det *Detector) { det.httpClient.Timeout = d }
}

// WithModelName selects the wake model on a sidecar serving several. Sent as
// the "model" query parameter when non-empty.
func WithModelName(name string) Option {
	return func(det *Detector) { det.modelName = name }
}

// Detector implements wake.Detector against a scoring sidecar.
type Detector struct {
	baseURL    string
	modelName  string
	threshold  float64
	httpClient *http.Client
}

// New creates a Detector targeting the sidecar at baseURL. Frames scoring at
// or above threshold count as detections.
func New(baseURL string, threshold float64, opts ...Option) (*Detector, error) {
	if baseURL == "" {
		return nil, errors.New("openwake: baseURL must not be empty")
	}
	d := &Detector{
		baseURL:    strings.TrimRight(baseURL, "/"),
		threshold:  threshold,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// scoreResponse is the JSON body returned by POST /score.
type scoreResponse struct {
	Score float64 `json:"score"`
}

// Process implements wake.Detector.
func (d *Detector) Process(frame []int16) (bool, float64, error) {
	reqURL := d.baseURL + scoreEndpoint
	if d.modelName != "" {
		reqURL += "?" + url.Values{"model": {d.modelName}}.Encode()
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, reqURL, bytes.NewReader(wire.EncodePCM(frame)))
	if err != nil {
		return false, 0, fmt.Errorf("openwake: create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("openwake: POST %s: %w", scoreEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("openwake: POST %s returned status %d", scoreEndpoint, resp.StatusCode)
	}

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return false, 0, fmt.Errorf("openwake: decode score response: %w", err)
	}
	return sr.Score >= d.threshold, sr.Score, nil
}

// Reset implements wake.Detector. Sidecar errors are logged, not returned:
// a failed reset only risks one spurious re-trigger.
func (d *Detector) Reset() {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, d.baseURL+resetEndpoint, nil)
	if err != nil {
		return
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		slog.Warn("openwake reset failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("openwake reset failed", "status", resp.StatusCode)
	}
}
