// Command watch_shots runs locally saved screenshots through the code
// extraction pipeline and inserts discovered codes into the store. One-shot
// scan by default; -watch keeps processing files as they appear.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codewatch/models"
	"codewatch/pkg/extract"
	"codewatch/pkg/ocr"
	"codewatch/pkg/store"
)

var (
	verbose bool
	dryRun  bool
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

func main() {
	dirFlag := flag.String("dir", "shots", "directory to scan for screenshot images")
	watch := flag.Bool("watch", false, "watch directory for new files")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	flag.BoolVar(&dryRun, "dry-run", false, "print found codes without writing them to the store")
	flag.BoolVar(&verbose, "verbose", false, "verbose per-file logging")
	flag.Parse()

	pattern := extract.DefaultPattern
	if v := os.Getenv("CODE_REGEX"); v != "" {
		re, err := extract.CompilePattern(v)
		if err != nil {
			log.Fatalf("invalid CODE_REGEX %q: %v", v, err)
		}
		pattern = re
	}

	engine := ocr.NewEngine(true, os.Getenv("OCR_LANGUAGE"))
	defer engine.Close()

	var codes *store.CodeStore
	if !dryRun {
		dsn := os.Getenv("DB_DSN")
		if dsn == "" {
			log.Fatal("DB_DSN must be set in environment to run this tool (or pass -dry-run)")
		}
		var err error
		codes, err = store.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open code store: %v", err)
		}
		defer codes.Close()
	}

	p := &processor{engine: engine, store: codes, pattern: pattern}

	files := listImageFiles(*dirFlag)
	log.Printf("scanning %d files (workers=%d)", len(files), effectiveWorkers(*workers))
	runWorkerPool(*dirFlag, p, files, effectiveWorkers(*workers))

	if *watch {
		if err := watchDirectory(*dirFlag, p, effectiveWorkers(*workers)); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

type processor struct {
	engine  *ocr.Engine
	store   *store.CodeStore
	pattern *regexp.Regexp
}

// processFile recognizes one screenshot and commits any codes it contains.
func (p *processor) processFile(dir, name string) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("ERROR reading %s: %v", name, err)
		return
	}
	text, err := p.engine.RecognizeImage(data)
	if err != nil {
		log.Printf("WARN ocr failed for %s: %v", name, err)
		return
	}
	res := extract.FilteredCodes(text, p.pattern)
	if len(res.Codes) == 0 {
		logV("no codes in %s", name)
		return
	}
	if dryRun {
		log.Printf("DRY-RUN %s codes=%v", name, res.Codes)
		return
	}
	now := time.Now()
	candidates := make([]models.Code, 0, len(res.Codes))
	for _, code := range res.Codes {
		candidates = append(candidates, store.NowCandidate(code, now))
	}
	inserted, err := p.store.SaveCodesIfNew(candidates)
	if err != nil {
		log.Printf("ERROR saving codes from %s: %v", name, err)
		return
	}
	for _, rec := range inserted {
		log.Printf("NEW code id=%d code=%s file=%s", rec.ID, rec.Code, name)
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// runWorkerPool fans filenames out to a fixed pool. Recognition itself is
// serialized inside the engine; the pool overlaps file reads and extraction.
func runWorkerPool(dir string, p *processor, initial []string, workers int, extraCh ...<-chan string) {
	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				p.processFile(dir, name)
			}
		}()
	}
	go func() {
		for _, f := range initial {
			fileCh <- f
		}
		for _, ch := range extraCh {
			go func(c <-chan string) {
				for n := range c {
					fileCh <- n
				}
			}(ch)
		}
		if len(extraCh) == 0 {
			close(fileCh)
		}
	}()
	if len(extraCh) == 0 {
		wg.Wait()
	}
}

// watchDirectory processes files as they land in dir. Create events are
// debounced so half-written screenshots are not picked up mid-copy.
func watchDirectory(dir string, p *processor, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("watching %s (debounced) ...", dir)

	fileCh := make(chan string, 256)
	go func() {
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if !isSupportedExt(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	go runWorkerPool(dir, p, nil, workers, fileCh)
	// block forever (Ctrl+C to exit)
	select {}
}
