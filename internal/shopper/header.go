// Package shopper identifies the shopper session behind each request.
//
// Clients carry an opaque session id in the Shopper-Session header, an
// RFC 8941 dictionary:
//
//	Shopper-Session: id="5f0c2a8e-4c1b-4f7e-9d55-0c4c3f1f6a10"
//
// A request without the header starts a new session; its id is returned in
// the same header on the response.
package shopper

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"
)

// HeaderName is the request and response header carrying the session id.
const HeaderName = "Shopper-Session"

// Session ids double as storage key segments, so the alphabet is narrow.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ParseHeader extracts the session id from a Shopper-Session header.
//
// Examples:
//   - id="abc-123"            → abc-123
//   - id="abc-123";v=1        → abc-123 (params ignored)
//   - other=1, id="abc-123"   → abc-123
func ParseHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("empty Shopper-Session header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", fmt.Errorf("invalid Shopper-Session header: %w", err)
	}

	member, ok := dict.Get("id")
	if !ok {
		return "", errors.New("id key not found in Shopper-Session header")
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", errors.New("id value must be an item")
	}

	id, ok := item.Value.(string)
	if !ok {
		return "", errors.New("id value must be a string")
	}

	if err := ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// FormatHeader serializes a session id as a Shopper-Session value.
func FormatHeader(id string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("id", httpsfv.NewItem(id))
	return httpsfv.Marshal(dict)
}

// ValidateID reports whether id is usable as a session id.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.New("session id must be 1-128 characters of [A-Za-z0-9._-]")
	}
	return nil
}

// NewID mints a session id.
func NewID() string {
	return uuid.NewString()
}
