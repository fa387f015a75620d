package cache

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// maxSharedAge caps s-maxage so shared caches revalidate at least
// hourly regardless of the entry's own TTL.
const maxSharedAge = 3600

// HeadersFor produces the edge-facing caching headers for a response
// with the given TTL, tags, and body. Pure function: no state, no I/O.
//
// The ETag is derived from the body content, so it only changes when
// the bytes do and survives process restarts.
func HeadersFor(ttl time.Duration, tags []string, body []byte) http.Header {
	maxAge := int(ttl.Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	sharedAge := maxAge
	if sharedAge > maxSharedAge {
		sharedAge = maxSharedAge
	}

	h := http.Header{}
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d, s-maxage=%d", maxAge, sharedAge))
	h.Set("ETag", ETagFor(body))
	h.Set("Vary", "Accept-Encoding")
	if len(tags) > 0 {
		h.Set("X-Cache-Tags", strings.Join(tags, ","))
	}
	return h
}

// ETagFor returns a strong content-derived entity tag.
func ETagFor(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:16]))
}

// Conditional carries the cache-relevant request headers the transport
// layer needs for conditional responses.
type Conditional struct {
	IfNoneMatch     string
	IfModifiedSince time.Time
	CacheControl    string
}

// ParseConditional extracts If-None-Match, If-Modified-Since, and
// Cache-Control from an inbound request. A malformed date is treated as
// absent.
func ParseConditional(r *http.Request) Conditional {
	c := Conditional{
		IfNoneMatch:  r.Header.Get("If-None-Match"),
		CacheControl: r.Header.Get("Cache-Control"),
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			c.IfModifiedSince = t
		}
	}
	return c
}

// Matches reports whether the request's If-None-Match covers etag,
// honoring the wildcard form.
func (c Conditional) Matches(etag string) bool {
	if c.IfNoneMatch == "" || etag == "" {
		return false
	}
	if c.IfNoneMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(c.IfNoneMatch, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}
