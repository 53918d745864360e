package fetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CanonicalURL returns the form of rawURL used to recognise repeated requests.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https),
// turns an empty path into "/" and drops the fragment, which is never sent.
// The path and query are kept as-is because both can select a different image.
func CanonicalURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", fmt.Errorf("'%s' is not an absolute URL", rawURL)
	}
	normalized := *parsed

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	}
	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String(), nil
}
