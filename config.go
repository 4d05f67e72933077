package main

import (
	"log"
	"os"
	"regexp"
	"strconv"
	"time"

	"codewatch/pkg/extract"
)

// config carries everything read from the environment at startup.
type config struct {
	dsn           string
	feedURL       string
	listenAddr    string
	codePattern   *regexp.Regexp
	checkInterval time.Duration
	messageLimit  int
	ocrEnabled    bool
	ocrLanguage   string
}

// loadConfig reads the environment. Missing required values are fatal;
// invalid optional values fall back to their defaults with a warning.
func loadConfig() config {
	cfg := config{
		listenAddr:   ":8081",
		codePattern:  extract.DefaultPattern,
		messageLimit: 50,
		ocrLanguage:  "eng",
	}

	cfg.dsn = os.Getenv("DB_DSN")
	if cfg.dsn == "" {
		log.Fatal("DB_DSN is not set. This service requires a Postgres DSN in DB_DSN.")
	}
	cfg.feedURL = os.Getenv("FEED_URL")
	if cfg.feedURL == "" {
		log.Fatal("FEED_URL is not set. Point it at the channel message feed.")
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.listenAddr = v
	}
	if v := os.Getenv("CODE_REGEX"); v != "" {
		re, err := extract.CompilePattern(v)
		if err != nil {
			log.Fatalf("invalid CODE_REGEX %q: %v", v, err)
		}
		cfg.codePattern = re
	}

	minutes := 5
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("WARN invalid CHECK_INTERVAL %q, using %d minutes", v, minutes)
		} else {
			minutes = n
		}
	}
	cfg.checkInterval = time.Duration(minutes) * time.Minute

	if v := os.Getenv("MESSAGE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.messageLimit = n
		} else {
			log.Printf("WARN invalid MESSAGE_LIMIT %q, using %d", v, cfg.messageLimit)
		}
	}

	cfg.ocrEnabled = os.Getenv("OCR_ENABLED") == "true"
	if v := os.Getenv("OCR_LANGUAGE"); v != "" {
		cfg.ocrLanguage = v
	}
	return cfg
}
