package library

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	maxTitleLen       = 255
	maxAuthorLen      = 255
	maxGenreLen       = 64
	maxDescriptionLen = 4000
	maxSummaryLen     = 4000
)

// ValidateBookSpec checks every field before any write happens.
func ValidateBookSpec(spec BookSpec) error {
	if err := requireLength("title", spec.Title, maxTitleLen); err != nil {
		return err
	}
	if err := requireLength("author", spec.Author, maxAuthorLen); err != nil {
		return err
	}
	// Descriptive fields are optional but must be well formed when present.
	if len(spec.Genre) > maxGenreLen {
		return fmt.Errorf("%w: genre exceeds %d characters", ErrInvalidBook, maxGenreLen)
	}
	if len(spec.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidBook, maxDescriptionLen)
	}
	if len(spec.Summary) > maxSummaryLen {
		return fmt.Errorf("%w: summary exceeds %d characters", ErrInvalidBook, maxSummaryLen)
	}
	if spec.Rating != 0 && (spec.Rating < 1 || spec.Rating > 5) {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidBook)
	}
	if spec.CoverColor != "" && !validHexColor(spec.CoverColor) {
		return fmt.Errorf("%w: cover_color must be a #rrggbb token", ErrInvalidBook)
	}
	if spec.CoverURL != "" && !validHTTPURL(spec.CoverURL) {
		return fmt.Errorf("%w: cover_url must be a valid http(s) URL", ErrInvalidBook)
	}
	if spec.TotalCopies < 1 || spec.TotalCopies > MaxTotalCopies {
		return fmt.Errorf("%w: total_copies must be between 1 and %d", ErrInvalidBook, MaxTotalCopies)
	}
	return nil
}

func requireLength(field, value string, max int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidBook, field)
	}
	if len(value) > max {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidBook, field, max)
	}
	return nil
}

func validHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
