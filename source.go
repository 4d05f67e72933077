package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// feedSource pulls recent messages from an HTTP JSON endpoint. The endpoint
// stands in for the chat platform: it returns the latest messages as a JSON
// array of {text, attachments:[{url, content_type}]} objects and accepts a
// limit query parameter.
type feedSource struct {
	url    string
	client *http.Client
}

func newFeedSource(feedURL string) *feedSource {
	return &feedSource{
		url:    feedURL,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *feedSource) RecentMessages(limit int) ([]Message, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	resp, err := f.client.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}
	var msgs []Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}
