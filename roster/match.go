package roster

import (
	"strings"

	"github.com/dhcgn/homework-intake/model"
)

// Match returns the first entry, in roster order, whose ID occurs in text as
// a standalone token and whose display name occurs anywhere in text.
func Match(text string, entries []model.RosterEntry) (model.RosterEntry, bool) {
	for _, e := range entries {
		if matches(text, e) {
			return e, true
		}
	}
	return model.RosterEntry{}, false
}

// MatchAll returns every entry Match would accept, in roster order.
func MatchAll(text string, entries []model.RosterEntry) []model.RosterEntry {
	var out []model.RosterEntry
	for _, e := range entries {
		if matches(text, e) {
			out = append(out, e)
		}
	}
	return out
}

func matches(text string, e model.RosterEntry) bool {
	if e.ID == "" || e.DisplayName == "" {
		return false
	}
	return containsToken(text, e.ID) && strings.Contains(text, e.DisplayName)
}

// containsToken reports whether token occurs in text with no ASCII letter or
// digit directly before or after it. Non-ASCII letters count as boundaries so
// that "1001张三" still yields the ID 1001.
func containsToken(text, token string) bool {
	for offset := 0; offset <= len(text)-len(token); {
		i := strings.Index(text[offset:], token)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(token)
		if (start == 0 || !isASCIIAlnum(text[start-1])) && (end == len(text) || !isASCIIAlnum(text[end])) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isASCIIAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
