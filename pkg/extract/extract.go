package extract

import (
	"regexp"
	"strings"
)

// DefaultPattern matches the usual promo code shape: 5-10 uppercase
// alphanumerics. Override with CODE_REGEX.
var DefaultPattern = regexp.MustCompile(`[A-Z0-9]{5,10}`)

// noisePatterns marks lines of OCR output that are promotional filler rather
// than codes. A line matching any of these is dropped before the final match.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)free\s*c*o*de`),
	regexp.MustCompile(`(?i)csgo\s*skins`),
	regexp.MustCompile(`(?i)promo(tional)?\s*code`),
	regexp.MustCompile(`(?i)^code:?\s*$`),
	regexp.MustCompile(`(?i)^\s*use\s*code\s*$`),
}

var nonCodeChars = regexp.MustCompile(`[^A-Z0-9]`)

// Result is the outcome of one extraction pass over a piece of text.
type Result struct {
	RawText      string   `json:"raw_text"`
	FilteredText string   `json:"filtered_text"`
	Codes        []string `json:"codes"`
}

// CompilePattern validates a configured code pattern.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(expr)
}

// Codes extracts candidate codes from direct message text. No line filtering
// is applied: message text is typically a bare code without surrounding
// noise, so the pattern match alone suffices.
func Codes(text string, pattern *regexp.Regexp) Result {
	if pattern == nil {
		pattern = DefaultPattern
	}
	return Result{
		RawText:      text,
		FilteredText: text,
		Codes:        matchCodes(text, pattern),
	}
}

// FilteredCodes extracts candidate codes from recognized image text. OCR
// output carries promotional filler around the code, so lines matching a
// known noise pattern are dropped, then only lines that still contain a
// pattern match are kept before the final extraction.
func FilteredCodes(text string, pattern *regexp.Regexp) Result {
	if pattern == nil {
		pattern = DefaultPattern
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isNoiseLine(line) {
			continue
		}
		if !pattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	filtered := strings.Join(kept, "\n")
	return Result{
		RawText:      text,
		FilteredText: filtered,
		Codes:        matchCodes(filtered, pattern),
	}
}

func isNoiseLine(line string) bool {
	for _, p := range noisePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// matchCodes runs the pattern globally, strips characters outside [A-Z0-9]
// from each match and deduplicates, preserving first-seen order.
func matchCodes(text string, pattern *regexp.Regexp) []string {
	if text == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, m := range pattern.FindAllString(text, -1) {
		code := nonCodeChars.ReplaceAllString(m, "")
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
