package util

import (
	"errors"
	"strings"
)

const maxKeySegment = 200

// ErrInvalidKeySegment is returned for segments that are empty or would escape their prefix.
var ErrInvalidKeySegment = errors.New("invalid object key segment")

// KeySegment turns s into one path segment of an object key. Bytes outside [A-Za-z0-9._-] become
// underscores, so a segment never contains a separator. Traversal names are rejected.
func KeySegment(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || strings.Contains(s, "..") || len(s) > maxKeySegment {
		return "", ErrInvalidKeySegment
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String(), nil
}
