// Package extract finds an embedded image URL inside an HTML document using
// pattern matching, so malformed markup is tolerated.
package extract

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xucian/grabimg/pkg/sniff"
	"github.com/xucian/grabimg/pkg/utils"
)

// imageValue matches an attribute value ending in a known image extension,
// optionally followed by a query string. The closing quote anchors the end.
var imageValue = func() string {
	exts := sniff.Extensions()
	for i, e := range exts {
		exts[i] = regexp.QuoteMeta(e)
	}
	return `([^"'<>]*?(?:` + strings.Join(exts, "|") + `)(?:\?[^"'<>]*)?)`
}()

const ogProperty = `\b(?:property|name)\s*=\s*["']og:image(?::url|:secure_url)?["']`

var (
	// Open-Graph image, property before content or content before property
	ogImagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<meta\b[^>]*?` + ogProperty + `[^>]*?\bcontent\s*=\s*["']` + imageValue + `["']`),
		regexp.MustCompile(`(?i)<meta\b[^>]*?\bcontent\s*=\s*["']` + imageValue + `["'][^>]*?` + ogProperty),
	}
	// First <img> whose src (or lazy-load data-src) has a known extension
	imgSrcPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<img\b[^>]*?\s(?:data-)?src\s*=\s*["']` + imageValue + `["']`),
	}
)

// TextFetcher fetches a document body as text
type TextFetcher interface {
	GetText(ctx context.Context, rawURL string, maxBytes int64) (string, error)
}

// Extractor fetches HTML pages and picks their best embedded image candidate
type Extractor struct {
	fetcher  TextFetcher
	maxBytes int64
	log      *logrus.Entry
}

// NewExtractor creates an Extractor. maxBytes <= 0 reads whole documents.
func NewExtractor(fetcher TextFetcher, maxBytes int64, log *logrus.Entry) *Extractor {
	return &Extractor{fetcher: fetcher, maxBytes: maxBytes, log: log}
}

// FindImage fetches pageURL and returns the best embedded image URL.
// Returns an error wrapping ErrNoCandidate when the page has none, or the fetch error.
func (e *Extractor) FindImage(ctx context.Context, pageURL string) (string, error) {
	pageLog := e.log.WithField("url", pageURL)

	body, err := e.fetcher.GetText(ctx, pageURL, e.maxBytes)
	if err != nil {
		return "", fmt.Errorf("fetch page '%s': %w", pageURL, err)
	}
	pageLog.WithField("bytes", len(body)).Debug("Fetched page body")

	candidate, err := FindCandidate(body, pageURL)
	if err != nil {
		return "", fmt.Errorf("scan page '%s': %w", pageURL, err)
	}
	pageLog.WithField("candidate", candidate).Debug("Found embedded image")
	return candidate, nil
}

// FindCandidate runs the Open-Graph pass, then the <img> pass, and resolves the
// winner against baseURL. Returns ErrNoCandidate when neither pass matches.
func FindCandidate(document, baseURL string) (string, error) {
	raw := FindOGImage(document)
	if raw == "" {
		raw = FindFirstImg(document)
	}
	if raw == "" {
		return "", utils.ErrNoCandidate
	}
	return resolveReference(raw, baseURL), nil
}

// FindOGImage returns the first Open-Graph image value with a known extension, or ""
func FindOGImage(document string) string {
	return firstMatch(ogImagePatterns, document)
}

// FindFirstImg returns the first <img> source with a known extension, or ""
func FindFirstImg(document string) string {
	return firstMatch(imgSrcPatterns, document)
}

// firstMatch returns the captured value of whichever pattern matches earliest in document
func firstMatch(patterns []*regexp.Regexp, document string) string {
	best := -1
	value := ""
	for _, re := range patterns {
		loc := re.FindStringSubmatchIndex(document)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best = loc[0]
			value = document[loc[2]:loc[3]]
		}
	}
	return strings.TrimSpace(html.UnescapeString(value))
}

// resolveReference makes ref absolute against baseURL; unparsable input is returned unchanged
func resolveReference(ref, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
