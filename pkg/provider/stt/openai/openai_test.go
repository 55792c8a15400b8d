package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/intake/pkg/provider/stt"
	"github.com/MrWong99/intake/pkg/provider/stt/openai"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := openai.New("", "whisper-1"); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestTranscribe_FakeServer(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()
		form = map[string]string{
			"filename": hdr.Filename,
			"content":  string(data),
			"model":    r.FormValue("model"),
			"language": r.FormValue("language"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" ผมชื่อสมชาย ใจดี "}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("wav-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tr.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "ผมชื่อสมชาย ใจดี" {
		t.Errorf("transcript = %q", got)
	}
	if form["model"] != "whisper-1" || form["language"] != "th" {
		t.Errorf("model = %q, language = %q", form["model"], form["language"])
	}
	if form["filename"] != "clip.wav" || form["content"] != "wav-bytes" {
		t.Errorf("uploaded %q with %q", form["filename"], form["content"])
	}
}

func TestTranscribe_MissingAudio(t *testing.T) {
	tr, _ := openai.New("sk-test", "whisper-1")
	_, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if !errors.Is(err, stt.ErrAudioNotFound) {
		t.Fatalf("err = %v, want ErrAudioNotFound", err)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad audio","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.wav")
	_ = os.WriteFile(path, []byte("x"), 0o644)

	tr, _ := openai.New("sk-test", "whisper-1", openai.WithBaseURL(srv.URL))
	if _, err := tr.Transcribe(context.Background(), path); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}
