package ocr

import (
	"errors"
	"testing"
)

func TestDisabledEngineShortCircuits(t *testing.T) {
	e := NewEngine(false, "")
	if e.Enabled() {
		t.Fatal("engine should report disabled")
	}
	if _, err := e.RecognizeImage([]byte("not an image")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestCloseIdempotentWithoutStart(t *testing.T) {
	e := NewEngine(true, "eng")
	if err := e.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if e.Enabled() {
		t.Fatal("closed engine should report disabled")
	}
	if _, err := e.RecognizeImage(nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled after close, got %v", err)
	}
}

func TestRecognizeRejectsBadImageData(t *testing.T) {
	e := NewEngine(true, "eng")
	defer e.Close()
	if _, err := e.RecognizeImage([]byte("definitely not a png")); err == nil {
		t.Fatal("expected decode error for garbage input")
	}
}
