package openwake

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skald-ai/skald/pkg/wire"
)

func TestDetector_ProcessScoresFrame(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/score" {
			t.Errorf("path = %q, want /score", r.URL.Path)
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"score":0.92}`))
	}))
	defer srv.Close()

	d, err := New(srv.URL, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	frame := []int16{1, 2, 3}
	detected, score, err := d.Process(frame)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !detected || score != 0.92 {
		t.Errorf("Process = (%v, %v), want (true, 0.92)", detected, score)
	}

	decoded, err := wire.DecodePCM(gotBody)
	if err != nil {
		t.Fatalf("request body is not PCM: %v", err)
	}
	if len(decoded) != 3 || decoded[0] != 1 || decoded[2] != 3 {
		t.Errorf("sidecar received %v, want %v", decoded, frame)
	}
}

func TestDetector_BelowThreshold(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score":0.3}`))
	}))
	defer srv.Close()

	d, err := New(srv.URL, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	detected, score, err := d.Process([]int16{0})
	if err != nil {
		t.Fatal(err)
	}
	if detected || score != 0.3 {
		t.Errorf("Process = (%v, %v), want (false, 0.3)", detected, score)
	}
}

func TestDetector_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, err := New(srv.URL, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := d.Process([]int16{0}); err == nil {
		t.Error("expected error on HTTP 500")
	}
}

func TestDetector_ResetHitsSidecar(t *testing.T) {
	t.Parallel()

	resets := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/reset" {
			resets++
		}
	}))
	defer srv.Close()

	d, err := New(srv.URL, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	d.Reset()
	if resets != 1 {
		t.Errorf("reset calls = %d, want 1", resets)
	}
}

func TestNew_EmptyBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New("", 0.5); err == nil {
		t.Error("expected error for empty baseURL")
	}
}
