package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Fingerprint hashes text into a short stable identifier for repeat
// detection. The text is normalized first so that two occurrences of
// the same failure fingerprint identically even when they differ in
// addresses, line numbers or identifiers: lower-cased, digit and hex
// runs collapsed to a placeholder, whitespace squeezed.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(normalize(text)))
	return hex.EncodeToString(sum[:8])
}

func normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	lastSpace := false
	var run []rune

	// Short fragments like exit codes stay as written. Longer runs of
	// hex characters that carry a digit are almost always addresses,
	// hashes or ids; plain words such as "decade" pass through.
	flushRun := func() {
		if len(run) >= 4 && containsDigit(run) {
			sb.WriteRune('#')
		} else {
			sb.WriteString(string(run))
		}
		run = run[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flushRun()
			if !lastSpace {
				sb.WriteRune(' ')
			}
			lastSpace = true
		case isHexDigit(r):
			run = append(run, r)
			lastSpace = false
		default:
			flushRun()
			sb.WriteRune(r)
			lastSpace = false
		}
	}
	flushRun()

	return strings.TrimSpace(sb.String())
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

func containsDigit(run []rune) bool {
	for _, r := range run {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// fingerprintWindow is a fixed-size queue of fingerprints; the oldest
// entry is evicted on overflow.
type fingerprintWindow struct {
	size    int
	entries []string
}

func newFingerprintWindow(size int) *fingerprintWindow {
	return &fingerprintWindow{size: size}
}

// push appends a fingerprint and returns how many times it now appears
// in the window, the new entry included.
func (w *fingerprintWindow) push(fp string) int {
	w.entries = append(w.entries, fp)
	if len(w.entries) > w.size {
		w.entries = w.entries[1:]
	}

	count := 0
	for _, e := range w.entries {
		if e == fp {
			count++
		}
	}
	return count
}

func (w *fingerprintWindow) snapshot() []string {
	return append([]string(nil), w.entries...)
}

func (w *fingerprintWindow) restore(entries []string) {
	w.entries = append([]string(nil), entries...)
	if len(w.entries) > w.size {
		w.entries = w.entries[len(w.entries)-w.size:]
	}
}
