package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codewatch/models"
)

type fakeSource struct {
	msgs []Message
	err  error
}

func (f *fakeSource) RecentMessages(limit int) ([]Message, error) { return f.msgs, f.err }

// blockingSource parks RecentMessages until released, to hold a check open.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) RecentMessages(limit int) ([]Message, error) {
	close(b.started)
	<-b.release
	return nil, nil
}

// memStore mimics the store's insert-if-new contract in memory.
type memStore struct {
	existing map[string]bool
	nextID   uint
}

func newMemStore() *memStore { return &memStore{existing: map[string]bool{}} }

func (m *memStore) SaveCodesIfNew(candidates []models.Code) ([]models.Code, error) {
	var inserted []models.Code
	for _, c := range candidates {
		if m.existing[c.Code] {
			continue
		}
		m.existing[c.Code] = true
		m.nextID++
		c.ID = m.nextID
		inserted = append(inserted, c)
	}
	return inserted, nil
}

// fakeRecognizer maps downloaded image bytes to recognized text.
type fakeRecognizer struct {
	texts   map[string]string
	enabled bool
}

func (f *fakeRecognizer) Enabled() bool { return f.enabled }

func (f *fakeRecognizer) RecognizeImage(data []byte) (string, error) {
	text, ok := f.texts[string(data)]
	if !ok {
		return "", errors.New("unrecognizable image")
	}
	return text, nil
}

func imageServer(t *testing.T, images map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func codeValues(codes []models.Code) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.Code)
	}
	return out
}

func TestRunCheckTextOnly(t *testing.T) {
	src := &fakeSource{msgs: []Message{{Text: "grab ABCDE12345 now"}}}
	checker := NewChecker(src, newMemStore(), &fakeRecognizer{}, nil, 0)

	res := checker.RunCheck()
	if got := codeValues(res.NewCodes); len(got) != 1 || got[0] != "ABCDE12345" {
		t.Fatalf("expected [ABCDE12345], got %v", got)
	}
}

func TestRunCheckImageEndToEnd(t *testing.T) {
	srv := imageServer(t, map[string]string{"/shot.png": "imgdata"})
	src := &fakeSource{msgs: []Message{{
		Text:        "nothing useful here",
		Attachments: []Attachment{{URL: srv.URL + "/shot.png", ContentType: "image/png"}},
	}}}
	rec := &fakeRecognizer{enabled: true, texts: map[string]string{"imgdata": "PROMO CODE\nXJ3K9Q2P"}}
	checker := NewChecker(src, newMemStore(), rec, nil, 0)

	res := checker.RunCheck()
	if got := codeValues(res.NewCodes); len(got) != 1 || got[0] != "XJ3K9Q2P" {
		t.Fatalf("expected [XJ3K9Q2P] after heuristic filtering, got %v", got)
	}
}

func TestRunCheckSecondPassYieldsNothing(t *testing.T) {
	src := &fakeSource{msgs: []Message{{Text: "ABCDE12345"}}}
	checker := NewChecker(src, newMemStore(), &fakeRecognizer{}, nil, 0)

	if res := checker.RunCheck(); len(res.NewCodes) != 1 {
		t.Fatalf("first run should insert one code, got %v", res.NewCodes)
	}
	if res := checker.RunCheck(); len(res.NewCodes) != 0 {
		t.Fatalf("second run over same window should insert nothing, got %v", res.NewCodes)
	}
}

func TestRunCheckImageFailureDoesNotAbortBatch(t *testing.T) {
	srv := imageServer(t, map[string]string{"/good.png": "good"})
	src := &fakeSource{msgs: []Message{
		{Attachments: []Attachment{{URL: srv.URL + "/missing.png", ContentType: "image/png"}}},
		{Attachments: []Attachment{{URL: srv.URL + "/good.png", ContentType: "image/png"}}},
		{Text: "GHJKL09876"},
	}}
	rec := &fakeRecognizer{enabled: true, texts: map[string]string{"good": "XJ3K9Q2P"}}
	checker := NewChecker(src, newMemStore(), rec, nil, 0)

	res := checker.RunCheck()
	got := map[string]bool{}
	for _, c := range res.NewCodes {
		got[c.Code] = true
	}
	if !got["XJ3K9Q2P"] || !got["GHJKL09876"] || len(got) != 2 {
		t.Fatalf("expected codes from surviving units, got %v", codeValues(res.NewCodes))
	}
}

func TestRunCheckSkipsNonImageAttachments(t *testing.T) {
	src := &fakeSource{msgs: []Message{{
		Attachments: []Attachment{{URL: "http://example.invalid/readme.txt", ContentType: "text/plain"}},
	}}}
	rec := &fakeRecognizer{enabled: true, texts: map[string]string{}}
	checker := NewChecker(src, newMemStore(), rec, nil, 0)

	if res := checker.RunCheck(); len(res.NewCodes) != 0 {
		t.Fatalf("expected nothing from non-image attachment, got %v", res.NewCodes)
	}
}

func TestRunCheckDisabledRecognizerIgnoresImages(t *testing.T) {
	src := &fakeSource{msgs: []Message{{
		Text:        "ABCDE12345",
		Attachments: []Attachment{{URL: "http://example.invalid/shot.png", ContentType: "image/png"}},
	}}}
	checker := NewChecker(src, newMemStore(), &fakeRecognizer{enabled: false}, nil, 0)

	res := checker.RunCheck()
	if got := codeValues(res.NewCodes); len(got) != 1 || got[0] != "ABCDE12345" {
		t.Fatalf("expected text extraction only, got %v", got)
	}
}

func TestRunCheckSourceFailureYieldsEmptyResult(t *testing.T) {
	src := &fakeSource{err: errors.New("feed unreachable")}
	checker := NewChecker(src, newMemStore(), &fakeRecognizer{}, nil, 0)

	res := checker.RunCheck()
	if len(res.NewCodes) != 0 || res.Skipped {
		t.Fatalf("expected empty non-skipped result, got %+v", res)
	}
}

func TestRunCheckDoesNotOverlap(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	checker := NewChecker(src, newMemStore(), &fakeRecognizer{}, nil, 0)

	done := make(chan CheckResult, 1)
	go func() { done <- checker.RunCheck() }()
	<-src.started

	if res := checker.RunCheck(); !res.Skipped {
		t.Fatal("second concurrent check should be skipped")
	}
	close(src.release)
	if res := <-done; res.Skipped {
		t.Fatal("first check should not report skipped")
	}
}

func TestLastCheckUpdated(t *testing.T) {
	checker := NewChecker(&fakeSource{}, newMemStore(), &fakeRecognizer{}, nil, 0)
	if !checker.LastCheck().IsZero() {
		t.Fatal("last check should be zero before any run")
	}
	before := time.Now()
	checker.RunCheck()
	if last := checker.LastCheck(); last.Before(before) {
		t.Fatalf("last check not updated: %v", last)
	}
}

func TestTestImageDisabled(t *testing.T) {
	checker := NewChecker(&fakeSource{}, newMemStore(), &fakeRecognizer{enabled: false}, nil, 0)
	if _, err := checker.TestImage("http://example.invalid/a.png"); err == nil {
		t.Fatal("expected error when ocr disabled")
	}
}

func TestTestImageReturnsExtraction(t *testing.T) {
	srv := imageServer(t, map[string]string{"/a.png": "imgdata"})
	rec := &fakeRecognizer{enabled: true, texts: map[string]string{"imgdata": "use code\nXJ3K9Q2P"}}
	checker := NewChecker(&fakeSource{}, newMemStore(), rec, nil, 0)

	res, err := checker.TestImage(srv.URL + "/a.png")
	if err != nil {
		t.Fatalf("test image: %v", err)
	}
	if len(res.Codes) != 1 || res.Codes[0] != "XJ3K9Q2P" {
		t.Fatalf("expected [XJ3K9Q2P], got %v", res.Codes)
	}
	if res.RawText != "use code\nXJ3K9Q2P" {
		t.Fatalf("raw text missing: %q", res.RawText)
	}
}
