// Package urlutil provides URL manipulation utilities used when building
// proxied stream and logo URLs.
package urlutil

import (
	"net/url"
	"strings"
)

// URL scheme constants.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// NormalizeBaseURL normalizes a base URL for consistent use:
//   - Adds http:// scheme if no scheme provided
//   - Removes trailing slash for clean path joining
//
// Examples:
//
//	"example.com:8080"      -> "http://example.com:8080"
//	"https://example.com/"  -> "https://example.com"
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}

	if !strings.Contains(baseURL, "://") {
		baseURL = SchemeHTTP + "://" + baseURL
	}

	return strings.TrimSuffix(baseURL, "/")
}

// JoinPath joins a base URL with a path, ensuring single slashes.
// The path should start with / for absolute paths.
func JoinPath(baseURL, path string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if path == "" {
		return baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// IsRemoteURL checks if a URL is an absolute remote URL (http or https).
// Returns false for relative paths, empty strings, or local paths.
func IsRemoteURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return parsed.Scheme == SchemeHTTP || parsed.Scheme == SchemeHTTPS
}
