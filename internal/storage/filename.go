package storage

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var schemePrefix = regexp.MustCompile(`^https?://`)

// LedgerFileName maps a source URL to a filesystem-safe identifier.
//
// Slashes are replaced before the scheme is stripped, so the scheme never
// matches and "https://host/x" becomes "https___host_x". Ledgers written by
// earlier runs rely on these exact names.
func LedgerFileName(sourceURL string) string {
	name := strings.ReplaceAll(sourceURL, "/", "_")
	name = schemePrefix.ReplaceAllString(name, "")
	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, name)
	return strings.TrimSpace(name)
}

// LedgerPath returns the ledger file used for sourceURL inside dbDir.
func LedgerPath(dbDir, sourceURL string) string {
	return filepath.Join(dbDir, LedgerFileName(sourceURL)+".csv")
}
