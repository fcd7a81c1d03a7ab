package engine

import (
	"testing"
	"unicode/utf8"
)

func TestTruncateLog(t *testing.T) {
	if got := truncateLog("short", 10); got != "short" {
		t.Errorf("expected untouched text, got %q", got)
	}
	if got := truncateLog("日本語のテキスト", 4); got != "日..." {
		t.Errorf("expected cut on a rune boundary, got %q", got)
	}
	s := "Wetter in Köln ☔"
	for n := 0; n < len(s); n++ {
		if got := truncateLog(s, n); !utf8.ValidString(got) {
			t.Errorf("truncateLog(%d) produced invalid UTF-8: %q", n, got)
		}
	}
}
