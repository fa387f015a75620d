package cache

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestHeadersForCacheControl(t *testing.T) {
	h := HeadersFor(60*time.Second, []string{"content"}, []byte("body"))

	if got := h.Get("Cache-Control"); got != "public, max-age=60, s-maxage=60" {
		t.Fatalf("unexpected Cache-Control: %q", got)
	}
	if got := h.Get("Vary"); got != "Accept-Encoding" {
		t.Fatalf("unexpected Vary: %q", got)
	}
	if got := h.Get("X-Cache-Tags"); got != "content" {
		t.Fatalf("unexpected X-Cache-Tags: %q", got)
	}
}

func TestHeadersForCapsSharedMaxAge(t *testing.T) {
	h := HeadersFor(24*time.Hour, nil, []byte("body"))

	if got := h.Get("Cache-Control"); got != "public, max-age=86400, s-maxage=3600" {
		t.Fatalf("expected s-maxage capped at 3600, got %q", got)
	}
	if h.Get("X-Cache-Tags") != "" {
		t.Fatalf("expected no X-Cache-Tags header without tags")
	}
}

func TestHeadersForJoinsTags(t *testing.T) {
	h := HeadersFor(time.Minute, []string{"content", "content:42"}, nil)

	if got := h.Get("X-Cache-Tags"); got != "content,content:42" {
		t.Fatalf("unexpected X-Cache-Tags: %q", got)
	}
}

func TestETagIsContentDerived(t *testing.T) {
	a := ETagFor([]byte("payload"))
	b := ETagFor([]byte("payload"))
	c := ETagFor([]byte("other"))

	if a != b {
		t.Fatalf("same bytes must produce the same ETag: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("different bytes must produce different ETags")
	}
	if a[0] != '"' || a[len(a)-1] != '"' {
		t.Fatalf("ETag must be quoted, got %q", a)
	}
}

func TestParseConditional(t *testing.T) {
	r := httptest.NewRequest("GET", "/content/42", nil)
	r.Header.Set("If-None-Match", `"abc"`)
	r.Header.Set("If-Modified-Since", "Mon, 02 Jan 2006 15:04:05 GMT")
	r.Header.Set("Cache-Control", "no-cache")

	c := ParseConditional(r)
	if c.IfNoneMatch != `"abc"` {
		t.Fatalf("unexpected If-None-Match: %q", c.IfNoneMatch)
	}
	if c.CacheControl != "no-cache" {
		t.Fatalf("unexpected Cache-Control: %q", c.CacheControl)
	}
	if c.IfModifiedSince.IsZero() {
		t.Fatalf("expected If-Modified-Since to parse")
	}
}

func TestParseConditionalBadDate(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("If-Modified-Since", "not a date")

	if c := ParseConditional(r); !c.IfModifiedSince.IsZero() {
		t.Fatalf("malformed date must be treated as absent")
	}
}

func TestConditionalMatches(t *testing.T) {
	etag := ETagFor([]byte("body"))

	cases := []struct {
		name  string
		inm   string
		match bool
	}{
		{"exact", etag, true},
		{"wildcard", "*", true},
		{"list", `"zzz", ` + etag, true},
		{"no match", `"zzz"`, false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Conditional{IfNoneMatch: tc.inm}
			if got := c.Matches(etag); got != tc.match {
				t.Fatalf("Matches(%q) = %v, want %v", tc.inm, got, tc.match)
			}
		})
	}
}
