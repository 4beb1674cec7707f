package device

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength bounds user-assigned display names.
const MaxNameLength = 64

// NameStore persists user-assigned display names across restarts.
type NameStore interface {
	// DeviceName returns the saved name for id; ok is false when none is saved.
	DeviceName(ctx context.Context, id string) (name string, ok bool, err error)
	SetDeviceName(ctx context.Context, id, name string) error
}

// DefaultName derives a display name from a device ID: underscores and
// hyphens become spaces and each word is capitalised.
//
//	DefaultName("living_room") // "Living Room"
func DefaultName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return id
	}
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// normaliseName trims a user-supplied name and checks its length.
func normaliseName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
