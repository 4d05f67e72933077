package main

import (
	"bufio"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"codewatch/pkg/ocr"
	"codewatch/pkg/store"
)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()
	cfg := loadConfig()

	codes, err := store.Open(cfg.dsn)
	if err != nil {
		log.Fatalf("failed to open code store: %v", err)
	}

	engine := ocr.NewEngine(cfg.ocrEnabled, cfg.ocrLanguage)
	if !cfg.ocrEnabled {
		log.Print("OCR disabled; image attachments will be skipped (set OCR_ENABLED=true to enable)")
	}

	checker := NewChecker(newFeedSource(cfg.feedURL), codes, engine, cfg.codePattern, cfg.messageLimit)
	srv := &Server{store: codes, checker: checker}

	// Initial check, then the scheduled loop. RunCheck itself refuses to
	// overlap, so a slow cycle makes the next tick a no-op.
	checker.RunCheck()
	ticker := time.NewTicker(cfg.checkInterval)
	go func() {
		for range ticker.C {
			checker.RunCheck()
		}
	}()
	log.Printf("codes will be checked every %s", cfg.checkInterval)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Print("shutting down...")
		ticker.Stop()
		if err := engine.Close(); err != nil {
			log.Printf("WARN closing ocr worker: %v", err)
		}
		if err := codes.Close(); err != nil {
			log.Printf("WARN closing store: %v", err)
		}
		os.Exit(0)
	}()

	r := gin.Default()
	srv.setupRoutes(r)
	if err := r.Run(cfg.listenAddr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
