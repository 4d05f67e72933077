package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"codewatch/models"
	"codewatch/pkg/extract"
)

// Message is one chat message pulled from the feed.
type Message struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is an image (or other file) attached to a message.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// MessageSource supplies the latest messages from the watched channel. The
// chat platform client behind it is not this package's concern.
type MessageSource interface {
	RecentMessages(limit int) ([]Message, error)
}

// recognizer is the slice of the OCR engine the checker needs.
type recognizer interface {
	Enabled() bool
	RecognizeImage(data []byte) (string, error)
}

// codeStore is the slice of the store the checker needs.
type codeStore interface {
	SaveCodesIfNew(candidates []models.Code) ([]models.Code, error)
}

// CheckResult is the outcome of one check cycle.
type CheckResult struct {
	NewCodes []models.Code `json:"new_codes"`
	// Skipped is set when another check was already running.
	Skipped bool `json:"skipped,omitempty"`
}

// TestResult is the outcome of running one image through the full pipeline.
type TestResult struct {
	extract.Result
	ProcessingMS int64 `json:"processing_time_ms"`
}

// Checker pulls a bounded window of recent messages, runs each through the
// extraction pipeline and commits new codes to the store.
type Checker struct {
	source  MessageSource
	store   codeStore
	engine  recognizer
	pattern *regexp.Regexp
	client  *http.Client
	limit   int

	running   sync.Mutex // held for the duration of one check
	mu        sync.Mutex // guards lastCheck
	lastCheck time.Time
}

// NewChecker wires a checker from its collaborators.
func NewChecker(source MessageSource, store codeStore, engine recognizer, pattern *regexp.Regexp, limit int) *Checker {
	if pattern == nil {
		pattern = extract.DefaultPattern
	}
	if limit <= 0 {
		limit = 50
	}
	return &Checker{
		source:  source,
		store:   store,
		engine:  engine,
		pattern: pattern,
		client:  &http.Client{Timeout: 30 * time.Second},
		limit:   limit,
	}
}

// RunCheck executes one check cycle. Checks never overlap: if one is already
// running the call returns immediately with Skipped set. A failed message or
// image is logged and skipped; the cycle always returns whatever it could
// commit.
func (c *Checker) RunCheck() CheckResult {
	if !c.running.TryLock() {
		log.Print("check already running, skipping")
		return CheckResult{Skipped: true}
	}
	defer c.running.Unlock()

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()

	msgs, err := c.source.RecentMessages(c.limit)
	if err != nil {
		log.Printf("ERROR fetching messages: %v", err)
		return CheckResult{}
	}
	log.Printf("checking %d messages", len(msgs))

	now := time.Now()
	var candidates []models.Code
	seen := map[string]struct{}{}
	for _, msg := range msgs {
		for _, code := range c.processMessage(msg) {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			candidates = append(candidates, models.Code{Code: code, DateFound: now, IsUsed: false})
		}
	}

	inserted, err := c.store.SaveCodesIfNew(candidates)
	if err != nil {
		log.Printf("ERROR saving codes: %v", err)
		return CheckResult{}
	}
	if len(inserted) > 0 {
		log.Printf("NEW codes added: %d", len(inserted))
	}
	return CheckResult{NewCodes: inserted}
}

// LastCheck returns when the most recent check started (zero if none yet).
func (c *Checker) LastCheck() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCheck
}

// processMessage extracts codes from one message's text and image
// attachments. Direct text skips the heuristic line filter; recognized image
// text goes through it.
func (c *Checker) processMessage(msg Message) []string {
	codes := extract.Codes(msg.Text, c.pattern).Codes

	if c.engine == nil || !c.engine.Enabled() {
		return codes
	}
	for _, att := range msg.Attachments {
		if !strings.HasPrefix(att.ContentType, "image/") {
			continue
		}
		found, err := c.codesFromImage(att.URL)
		if err != nil {
			log.Printf("WARN image %s skipped: %v", att.URL, err)
			continue
		}
		codes = append(codes, found...)
	}
	return codes
}

// codesFromImage downloads, recognizes and extracts codes from one image.
func (c *Checker) codesFromImage(url string) ([]string, error) {
	data, err := c.fetchImage(url)
	if err != nil {
		return nil, err
	}
	text, err := c.engine.RecognizeImage(data)
	if err != nil {
		return nil, err
	}
	return extract.FilteredCodes(text, c.pattern).Codes, nil
}

// TestImage runs a single image URL through the full pipeline and returns
// the raw and filtered text along with the codes found. Backs the
// test-extraction command.
func (c *Checker) TestImage(url string) (TestResult, error) {
	if c.engine == nil || !c.engine.Enabled() {
		return TestResult{}, fmt.Errorf("ocr is disabled")
	}
	start := time.Now()
	data, err := c.fetchImage(url)
	if err != nil {
		return TestResult{}, err
	}
	text, err := c.engine.RecognizeImage(data)
	if err != nil {
		return TestResult{}, err
	}
	return TestResult{
		Result:       extract.FilteredCodes(text, c.pattern),
		ProcessingMS: time.Since(start).Milliseconds(),
	}, nil
}

func (c *Checker) fetchImage(url string) ([]byte, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	return data, nil
}
