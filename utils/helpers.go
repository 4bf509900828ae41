/*
Package utils provides helper functions for the feed republisher.
*/
package utils

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return time.Now().Format("20060102150405") + "-" + uuid.NewString()[:8]
}

// GenerateCycleID generates an identifier for a poll or process cycle
func GenerateCycleID(kind string) string {
	return kind + "-" + uuid.NewString()
}

// SlugFromURL returns the trailing path segment of a link.
// Query strings and fragments are ignored; a link without a path falls back to its host.
func SlugFromURL(link string) string {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		trimmed := strings.Trim(link, "/")
		if i := strings.LastIndex(trimmed, "/"); i >= 0 {
			return trimmed[i+1:]
		}
		return trimmed
	}
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return u.Host
	}
	return path.Base(p)
}

// pageExtensions are suffixes some publishers append to article slugs.
var pageExtensions = []string{".cms", ".html", ".htm", ".php", ".aspx"}

// PostSlug turns an item slug into a slug accepted by WordPress.
func PostSlug(slug string) string {
	lower := strings.ToLower(slug)
	for _, ext := range pageExtensions {
		if strings.HasSuffix(lower, ext) {
			return slug[:len(slug)-len(ext)]
		}
	}
	return slug
}

// FilenameFromURL returns the last path segment of an image URL, or fallback
// when the segment does not look like a file name.
func FilenameFromURL(rawURL, fallback string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(name)
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return fallback
	}
	return name
}
