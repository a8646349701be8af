package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribeUploadsMultipartAudio(t *testing.T) {
	var gotFilename, gotContentType string
	var gotBytes []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice-to-text/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("missing audio part: %v", err)
		}
		defer func() { _ = file.Close() }()
		gotFilename = header.Filename
		gotContentType = header.Header.Get("Content-Type")
		gotBytes, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transcript":"cartrita what's the weather","wakeWord":{"detected":true,"wakeWord":"Cartrita","cleanTranscript":"what's the weather"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	result, err := client.Transcribe(context.Background(), []byte("OggS..."), "audio/ogg; codecs=opus")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if gotFilename != "clip.ogg" {
		t.Errorf("expected filename clip.ogg, got %q", gotFilename)
	}
	if !strings.Contains(gotContentType, "audio/ogg") {
		t.Errorf("expected ogg content type, got %q", gotContentType)
	}
	if string(gotBytes) != "OggS..." {
		t.Errorf("audio payload mangled: %q", gotBytes)
	}

	if result.WakeWord == nil || !result.WakeWord.Detected {
		t.Fatal("expected wake word detection in result")
	}
	if result.WakeWord.WakeWord != "Cartrita" {
		t.Errorf("expected wake phrase Cartrita, got %q", result.WakeWord.WakeWord)
	}
	if result.WakeWord.CleanTranscript != "what's the weather" {
		t.Errorf("expected clean transcript, got %q", result.WakeWord.CleanTranscript)
	}
}

func TestTranscribeSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Transcribe(context.Background(), []byte("x"), "audio/wav")
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}
