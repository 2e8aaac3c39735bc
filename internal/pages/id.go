package pages

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// ControllerNameSuffix is appended to the camel-cased page identifier to build a controller name.
	ControllerNameSuffix = "Controller"
	// SegmentDelimiter separates the words of a page identifier.
	SegmentDelimiter = "-"

	errorMessageInvalidPageID = "pages: invalid page identifier"
	errorMessageEmptyPageID   = "pages: empty page identifier"
)

var (
	// ErrInvalidPageID indicates the identifier does not follow the lowercase hyphenated form.
	ErrInvalidPageID = errors.New(errorMessageInvalidPageID)
	// ErrEmptyPageID indicates the identifier was blank.
	ErrEmptyPageID = errors.New(errorMessageEmptyPageID)

	pageIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// ID identifies a page template and its controller, for example "client-home-page".
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID trims and validates a raw page identifier.
func ParseID(rawID string) (ID, error) {
	trimmed := strings.TrimSpace(rawID)
	if trimmed == "" {
		return "", ErrEmptyPageID
	}
	if !pageIDPattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPageID, rawID)
	}
	return ID(trimmed), nil
}

// ControllerName maps a page identifier to its conventional controller name.
// Each hyphen-separated segment has its first character upper-cased and the
// segments are joined before the Controller suffix is appended:
// "client-home-page" becomes "ClientHomePageController".
func ControllerName(id ID) string {
	var builder strings.Builder
	for _, segment := range strings.Split(string(id), SegmentDelimiter) {
		if segment == "" {
			continue
		}
		firstRune, size := utf8.DecodeRuneInString(segment)
		builder.WriteRune(unicode.ToUpper(firstRune))
		builder.WriteString(segment[size:])
	}
	builder.WriteString(ControllerNameSuffix)
	return builder.String()
}
