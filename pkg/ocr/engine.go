package ocr

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// defaultTimeout bounds a single recognition call. A hung Tesseract call
// fails that image only; the rest of the batch proceeds.
const defaultTimeout = 30 * time.Second

// Engine wraps a single shared Tesseract worker. The worker is created
// lazily on the first recognition and reused for every later call; access is
// serialized, so concurrent recognition does not scale and callers should
// not expect it to.
type Engine struct {
	mu        sync.Mutex // guards client and all worker access
	client    *gosseract.Client
	language  string
	cropRatio float64
	timeout   time.Duration
	enabled   atomic.Bool
	closed    atomic.Bool
}

// NewEngine builds an Engine. A disabled engine never starts a worker and
// short-circuits every recognition with ErrDisabled.
func NewEngine(enabled bool, language string) *Engine {
	if language == "" {
		language = "eng"
	}
	e := &Engine{
		language:  language,
		cropRatio: defaultCropRatio,
		timeout:   defaultTimeout,
	}
	e.enabled.Store(enabled)
	return e
}

// Enabled reports whether the image pipeline is active.
func (e *Engine) Enabled() bool {
	return e.enabled.Load() && !e.closed.Load()
}

// RecognizeImage preprocesses raw image bytes and runs them through the
// shared worker, returning the recognized text.
func (e *Engine) RecognizeImage(data []byte) (string, error) {
	if !e.Enabled() {
		return "", ErrDisabled
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	processed := Preprocess(img, e.cropRatio)

	tmp, err := os.CreateTemp("", "codewatch-*.png")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	if err := imaging.Save(processed, path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("save processed image: %w", err)
	}
	return e.recognize(path)
}

// recognize feeds a processed image file to the worker. The scratch file is
// removed once the worker is done with it, success or failure.
func (e *Engine) recognize(path string) (string, error) {
	e.mu.Lock()
	client, err := e.workerLocked()
	if err != nil {
		e.mu.Unlock()
		_ = os.Remove(path)
		return "", err
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer e.mu.Unlock()
		defer os.Remove(path)
		if err := client.SetImage(path); err != nil {
			done <- result{err: err}
			return
		}
		text, err := client.Text()
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("recognize: %w", res.err)
		}
		return res.text, nil
	case <-timer.C:
		return "", fmt.Errorf("recognize: timed out after %s", e.timeout)
	}
}

// workerLocked returns the shared client, starting it on first use. Callers
// hold e.mu. An init failure disables the engine instead of propagating: the
// caller skips the image and the batch continues.
func (e *Engine) workerLocked() (*gosseract.Client, error) {
	if e.closed.Load() || !e.enabled.Load() {
		return nil, ErrDisabled
	}
	if e.client != nil {
		return e.client, nil
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(e.language); err != nil {
		_ = client.Close()
		e.enabled.Store(false)
		log.Printf("WARN ocr worker init failed, disabling image pipeline: %v", err)
		return nil, ErrDisabled
	}
	e.client = client
	log.Printf("OCR worker started (lang=%s)", e.language)
	return client, nil
}

// Close tears the worker down. Safe to call more than once and before any
// recognition has started.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
