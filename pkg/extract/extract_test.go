package extract

import (
	"regexp"
	"testing"
)

func assertCodes(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d codes %v, got %v", len(want), want, got)
	}
	set := map[string]bool{}
	for _, c := range got {
		set[c] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Fatalf("expected code %s in %v", w, got)
		}
	}
}

func TestCodesEmptyInput(t *testing.T) {
	res := Codes("", nil)
	if len(res.Codes) != 0 {
		t.Fatalf("expected no codes for empty input, got %v", res.Codes)
	}
	res = FilteredCodes("", nil)
	if len(res.Codes) != 0 {
		t.Fatalf("expected no codes for empty filtered input, got %v", res.Codes)
	}
}

func TestCodesDefaultPattern(t *testing.T) {
	res := Codes("ABCDE12345 some filler FGHIJ67890", nil)
	assertCodes(t, res.Codes, "ABCDE12345", "FGHIJ67890")
}

func TestCodesDeduplicates(t *testing.T) {
	res := Codes("ABC12 then again ABC12", nil)
	assertCodes(t, res.Codes, "ABC12")
}

func TestFilteredCodesDropsNoiseLines(t *testing.T) {
	res := FilteredCodes("Free Code!\nXJ3K9Q2P", nil)
	assertCodes(t, res.Codes, "XJ3K9Q2P")
	if res.FilteredText != "XJ3K9Q2P" {
		t.Fatalf("expected filtered text to keep only the code line, got %q", res.FilteredText)
	}
}

func TestFilteredCodesPromoHeader(t *testing.T) {
	res := FilteredCodes("PROMO CODE\nXJ3K9Q2P", nil)
	assertCodes(t, res.Codes, "XJ3K9Q2P")
}

func TestFilteredCodesKeepsRawText(t *testing.T) {
	raw := "use code\nCSGO SKINS\nAB12CD34"
	res := FilteredCodes(raw, nil)
	if res.RawText != raw {
		t.Fatalf("raw text changed: %q", res.RawText)
	}
	assertCodes(t, res.Codes, "AB12CD34")
}

func TestFilteredCodesDropsNonMatchingLines(t *testing.T) {
	// Line survives the noise filter but holds no pattern match.
	res := FilteredCodes("hello there\nXJ3K9Q2P", nil)
	assertCodes(t, res.Codes, "XJ3K9Q2P")
}

func TestMatchNormalizationStripsSeparators(t *testing.T) {
	pattern := regexp.MustCompile(`[A-Z0-9-]{5,10}`)
	res := Codes("AB-CD-12", pattern)
	assertCodes(t, res.Codes, "ABCD12")
}

func TestCompilePattern(t *testing.T) {
	if _, err := CompilePattern(`[A-Z]{4}`); err != nil {
		t.Fatalf("valid pattern rejected: %v", err)
	}
	if _, err := CompilePattern(`[`); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}
