package common

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestStripHTMLFlattensMarkup(t *testing.T) {
	got := StripHTML("The <i>One Piece</i> is<br/> real &amp; near")
	if got != "The One Piece is real & near" {
		t.Fatalf("unexpected strip result %q", got)
	}
}

func TestStripHTMLCollapsesWhitespace(t *testing.T) {
	got := StripHTML("  a \n\n b\t c  ")
	if got != "a b c" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestYearFromDateVariants(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"1997-07-22T00:00:00+00:00", 1997},
		{"2021", 2021},
		{" 1954-01-01 ", 1954},
		{"not a date", 0},
		{"", 0},
		{"99", 0},
	}
	for _, tc := range cases {
		if got := YearFromDate(tc.input); got != tc.want {
			t.Fatalf("YearFromDate(%q): expected %d, got %d", tc.input, tc.want, got)
		}
	}
}

func TestReadJSONBodyRejectsNon200(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Body:       io.NopCloser(strings.NewReader(`{"error":"rate limited"}`)),
	}
	_, err := ReadJSONBody(resp)
	if err == nil {
		t.Fatalf("expected error for HTTP 429")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error must carry status and excerpt, got %v", err)
	}
}

func TestReadJSONBodyReturnsPayload(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}
	payload, err := ReadJSONBody(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"ok":true}` {
		t.Fatalf("unexpected payload %q", payload)
	}
}
