package events

import (
	"errors"
	"strings"
)

const (
	slidePrefix  = "#slide="
	objectPrefix = "id."
)

var (
	// ErrMalformedFragment means the payload lacks the #slide= prefix.
	ErrMalformedFragment = errors.New("fragment does not start with #slide=")
	// ErrEmptyIdentifier means the prefix was present but no token followed it.
	ErrEmptyIdentifier = errors.New("fragment carries an empty slide identifier")
)

// ParseFragment extracts the bare slide identifier from a location hash such
// as "#slide=id.g42" or "#slide=g42".
func ParseFragment(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, slidePrefix) {
		return "", ErrMalformedFragment
	}
	id := NormalizeIdentifier(strings.TrimPrefix(raw, slidePrefix))
	if id == "" {
		return "", ErrEmptyIdentifier
	}
	return id, nil
}

// NormalizeIdentifier strips a leftover "id." object prefix.
func NormalizeIdentifier(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), objectPrefix)
}
