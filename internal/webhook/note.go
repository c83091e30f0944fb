package webhook

import (
	"regexp"
	"strings"
)

var noteKVRe = regexp.MustCompile(`(?i)(?:^|[\s,;])([a-zA-Z0-9_]+)=([a-zA-Z0-9_-]+)`)

// ParseKeyFromNote extracts a key=value token from a free-text PMS note.
// Front-desk agents type these inline, so punctuation and prose around the
// token are tolerated.
//
// Example note:
//
//	"AC leaking onto carpet priority=urgent source=night-audit"
func ParseKeyFromNote(note string, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	matches := noteKVRe.FindAllStringSubmatch(note, -1)
	for _, m := range matches {
		if len(m) != 3 {
			continue
		}
		if strings.EqualFold(m[1], key) {
			return m[2]
		}
	}
	return ""
}
