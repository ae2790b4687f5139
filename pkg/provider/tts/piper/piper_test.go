package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skald-ai/skald/pkg/provider/tts"
)

func wavPCM16(t *testing.T, sampleRate int, samples ...int16) []byte {
	t.Helper()
	var data bytes.Buffer
	binary.Write(&data, binary.LittleEndian, samples)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func drain(t *testing.T, s tts.ChunkStream) []tts.Chunk {
	t.Helper()
	var chunks []tts.Chunk
	for {
		c, err := s.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, c)
	}
}

func TestEngine_SynthesizeChunks(t *testing.T) {
	t.Parallel()

	var gotVoices []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotVoices = append(gotVoices, req.Voice)
		w.Write(wavPCM16(t, 1000, 1, 2, 3))
	}))
	defer srv.Close()

	e, err := New(srv.URL,
		WithVoices(map[string]string{"en": "en_US-lessac-medium", "de": "de_DE-thorsten-medium"}),
		WithSentenceSilence(0.1),
	)
	if err != nil {
		t.Fatal(err)
	}

	stream, err := e.SynthesizeChunks(context.Background(), "Hello there. How are you?", "de")
	if err != nil {
		t.Fatalf("SynthesizeChunks: %v", err)
	}
	chunks := drain(t, stream)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	// 0.1 s at 1000 Hz appends 100 silence samples to the first chunk only.
	if got := len(chunks[0].Samples); got != 3+100 {
		t.Errorf("first chunk length = %d, want 103", got)
	}
	if got := len(chunks[1].Samples); got != 3 {
		t.Errorf("last chunk length = %d, want 3", got)
	}
	if !chunks[1].IsLast || chunks[0].IsLast {
		t.Errorf("IsLast flags = [%v %v], want [false true]", chunks[0].IsLast, chunks[1].IsLast)
	}
	if chunks[0].SampleRate != 1000 {
		t.Errorf("sample rate = %d, want 1000 from WAV header", chunks[0].SampleRate)
	}
	for _, v := range gotVoices {
		if v != "de_DE-thorsten-medium" {
			t.Errorf("voice = %q, want de_DE-thorsten-medium", v)
		}
	}
}

func TestEngine_UnknownLanguageFallsBackToDefaultVoice(t *testing.T) {
	t.Parallel()

	voices := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		voices <- req.Voice
		w.Write(wavPCM16(t, 1000, 1))
	}))
	defer srv.Close()

	e, err := New(srv.URL,
		WithVoices(map[string]string{"en": "en_US-lessac-medium"}),
		WithDefaultLanguage("en"),
	)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := e.SynthesizeChunks(context.Background(), "Hi.", "fr")
	if err != nil {
		t.Fatal(err)
	}
	drain(t, stream)

	if got := <-voices; got != "en_US-lessac-medium" {
		t.Errorf("voice = %q, want default language voice", got)
	}
}

func TestEngine_ServerErrorSurfacesOnNext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no model", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := e.SynthesizeChunks(context.Background(), "Hi.", "en")
	if err != nil {
		t.Fatalf("SynthesizeChunks: %v", err)
	}
	if _, err := stream.Next(); err == nil {
		t.Error("expected error from Next on HTTP 500")
	}
}

func TestEngine_EmptyTextYieldsNoChunks(t *testing.T) {
	t.Parallel()

	e, err := New("http://localhost:9")
	if err != nil {
		t.Fatal(err)
	}
	stream, err := e.SynthesizeChunks(context.Background(), "   ", "en")
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, stream); len(got) != 0 {
		t.Errorf("got %d chunks, want 0", len(got))
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty baseURL")
	}
}
