// Package scrape reads the current people count off the library homepage.
package scrape

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrNoCount means the selector matched nothing, or only whitespace.
	ErrNoCount = errors.New("scrape: occupancy element not found")
	// ErrInvalidCount means the element did not start with a non-negative integer.
	ErrInvalidCount = errors.New("scrape: occupancy is not a non-negative integer")
	// ErrUpstream wraps transport failures and non-2xx responses.
	ErrUpstream = errors.New("scrape: upstream request failed")
)

// ParseOccupancy extracts the count from the first element matching selector.
// Text after the leading integer is ignored, so "42 people" reads as 42.
func ParseOccupancy(r io.Reader, selector string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return 0, fmt.Errorf("parse page: %w", err)
	}

	text := strings.TrimSpace(doc.Find(selector).First().Text())
	if text == "" {
		return 0, ErrNoCount
	}

	count, err := leadingInt(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, text)
	}
	if count < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, text)
	}
	return count, nil
}

// leadingInt parses an optional sign and the digits that follow it.
func leadingInt(s string) (int, error) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return strconv.Atoi(s[:end])
}
