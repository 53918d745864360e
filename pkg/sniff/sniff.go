// Package sniff guesses the real content type of a URL from its declared
// Content-Type header and its file extension.
package sniff

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xucian/grabimg/pkg/models"
	"github.com/xucian/grabimg/pkg/utils"
)

// AssumedHTML is the type assigned when the metadata probe fails
const AssumedHTML = "text/html"

// extensionMIME is checked in order; ".jpeg" precedes ".jpg" only for readability, the suffixes do not overlap
var extensionMIME = []struct {
	ext  string
	mime string
}{
	{".webp", "image/webp"},
	{".gif", "image/gif"},
	{".jpeg", "image/jpeg"},
	{".jpg", "image/jpeg"},
	{".bmp", "image/bmp"},
}

// Extensions returns the known image extensions, with their leading dot
func Extensions() []string {
	exts := make([]string, len(extensionMIME))
	for i, e := range extensionMIME {
		exts[i] = e.ext
	}
	return exts
}

// StripQuery removes a "?..." suffix (and any "#..." fragment) from rawURL
func StripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// GuessFromExtension maps the URL's trailing extension to a MIME type, ignoring
// the query string and letter case. Returns "" when nothing matches.
func GuessFromExtension(rawURL string) string {
	path := strings.ToLower(StripQuery(rawURL))
	for _, e := range extensionMIME {
		if strings.HasSuffix(path, e.ext) {
			return e.mime
		}
	}
	return ""
}

// HasWebPExtension reports whether the stripped URL ends in ".webp"
func HasWebPExtension(rawURL string) bool {
	return strings.HasSuffix(strings.ToLower(StripQuery(rawURL)), ".webp")
}

// Prober is the metadata-only request the resolver depends on
type Prober interface {
	Head(ctx context.Context, rawURL string) (string, error)
}

// Resolver combines header and extension evidence into one ContentTypeGuess
type Resolver struct {
	prober Prober
	log    *logrus.Entry
}

// NewResolver creates a Resolver backed by prober
func NewResolver(prober Prober, log *logrus.Entry) *Resolver {
	return &Resolver{prober: prober, log: log}
}

// Resolve probes rawURL and returns the best guess of its content type.
//
// A declared image/* type wins outright. Otherwise a known image extension wins
// over whatever the server declared. A failed probe counts as text/html because
// many servers reject HEAD for pages that are fetchable with GET.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) models.ContentTypeGuess {
	resLog := r.log.WithField("url", rawURL)

	declared, err := r.prober.Head(ctx, rawURL)
	if err == nil && models.Guess(declared).IsImage() {
		resLog.WithField("content_type", declared).Debug("Server declared an image type")
		return models.Guess(declared)
	}

	serverType := declared
	if err != nil {
		if errors.Is(err, utils.ErrCancelled) {
			resLog.Debug("Probe interrupted by cancellation")
		} else {
			resLog.WithField("error_type", utils.CategorizeError(err)).Debugf("Probe failed, assuming HTML: %v", err)
		}
		serverType = AssumedHTML
	}

	if extType := GuessFromExtension(rawURL); extType != "" {
		if serverType != extType {
			resLog.WithFields(logrus.Fields{"declared": serverType, "extension": extType}).Debug("Extension overrides declared type")
		}
		return models.Guess(extType)
	}

	return models.Guess(serverType)
}
