package common

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
	yearPattern  = regexp.MustCompile(`^(\d{4})`)
	breakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// StripHTML flattens markup-bearing descriptions (AniList returns HTML)
// into plain text with collapsed whitespace.
func StripHTML(raw string) string {
	value := breakPattern.ReplaceAllString(raw, "\n")
	value = tagPattern.ReplaceAllString(value, "")
	value = html.UnescapeString(value)
	value = spacePattern.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// YearFromDate extracts the year from an ISO-ish date string such as
// "1997-07-22T00:00:00+00:00" or "1997". Returns 0 when absent.
func YearFromDate(raw string) int {
	match := yearPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return 0
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return year
}

// ReadJSONBody drains a response body with a size cap and surfaces
// non-200 statuses as errors including a payload excerpt.
func ReadJSONBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("provider HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
}
