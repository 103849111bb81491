package utils

import (
	"crypto/rand"
	"encoding/base32"
	"regexp"
	"strings"
	"time"
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTicketCode returns a human readable code such as NSV-250301093000-K3JQ7M.
// Uniqueness is enforced by the tickets.code constraint; the random suffix
// keeps collisions rare enough that a retry is sufficient.
func GenerateTicketCode(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "NSV-" + now.UTC().Format("060102150405") + "-" + codeEncoding.EncodeToString(buf)[:6]
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and collapses every run of non-alphanumerics to "-".
func Slugify(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "event"
	}
	return slug
}

// Paginate clamps page/limit and returns the row offset.
func Paginate(page, limit, defaultLimit, maxLimit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, (page - 1) * limit
}
