// Package origin normalizes browser Origin headers and matches them against
// an allowlist. The websocket upgrader uses it to decide which pages may
// open signaling connections.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates an Origin header and returns it in canonical
// scheme://host[:port] form (lowercased, default ports stripped).
//
// The special value "null" (sandboxed iframes, file:// pages) is returned
// as-is; whether it is accepted is the allowlist's decision.
func Normalize(header string) (string, bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", false
	}
	// An origin is scheme://host[:port] and nothing else.
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || (u.Path != "" && u.Path != "/") {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", false
	}

	port := 0
	if rawPort := u.Port(); rawPort != "" {
		n, err := strconv.Atoi(rawPort)
		if err != nil || n <= 0 || n > 65535 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.Itoa(port)
	}
	return scheme + "://" + host, true
}

// Allowed reports whether a normalized origin may connect.
//
// An empty allowlist accepts every origin; this is the development default
// and is warned about at startup in prod mode. Entries must be "*" or
// normalized origins as produced by Normalize.
func Allowed(normalized string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, entry := range allowlist {
		if entry == "*" || entry == normalized {
			return true
		}
	}
	return false
}
