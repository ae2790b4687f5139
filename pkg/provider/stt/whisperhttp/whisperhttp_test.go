package whisperhttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscriber_Transcribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("path = %q, want /transcribe", r.URL.Path)
		}
		if got := r.URL.Query().Get("sample_rate"); got != "16000" {
			t.Errorf("sample_rate = %q, want 16000", got)
		}
		if got := r.URL.Query().Get("language"); got != "en" {
			t.Errorf("language = %q, want en", got)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 6 {
			t.Errorf("body length = %d, want 6 bytes for 3 samples", len(body))
		}
		w.Write([]byte(`{"text":" hello ","language":"en","duration_s":0.2,"transcription_time_s":0.05,"avg_logprob":-0.3,"no_speech_prob":0.01}`))
	}))
	defer srv.Close()

	tr, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tr.Transcribe(context.Background(), []int16{1, 2, 3}, 16000, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("Text = %q, want trimmed %q", got.Text, "hello")
	}
	if got.AvgLogprob != -0.3 || got.NoSpeechProb != 0.01 {
		t.Errorf("confidence = (%v, %v), want (-0.3, 0.01)", got.AvgLogprob, got.NoSpeechProb)
	}
}

func TestTranscriber_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Transcribe(context.Background(), []int16{1}, 16000, ""); err == nil {
		t.Error("expected error on HTTP 503")
	}
}

func TestTranscriber_InvalidSampleRate(t *testing.T) {
	t.Parallel()

	tr, err := New("http://localhost:9")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Transcribe(context.Background(), []int16{1}, 0, ""); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
