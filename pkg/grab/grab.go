// Package grab turns an arbitrary URL into a decoded image.
//
// A URL that serves an image is downloaded directly. A URL that serves an HTML
// page is scanned for its Open Graph image, or failing that its first <img>,
// and that candidate is downloaded instead. Any other content type is ignored.
//
// Failures never surface as errors from Fetch: the caller gets an image or nil,
// and the reason is logged with an error_type field.
package grab

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/xucian/grabimg/pkg/config"
	"github.com/xucian/grabimg/pkg/decode"
	"github.com/xucian/grabimg/pkg/extract"
	"github.com/xucian/grabimg/pkg/fetch"
	"github.com/xucian/grabimg/pkg/models"
	"github.com/xucian/grabimg/pkg/sniff"
	"github.com/xucian/grabimg/pkg/utils"
)

// Display receives images produced by FetchInto
type Display interface {
	// Valid reports whether the display can still take ownership of an image
	Valid() bool
	SetImage(img *models.DecodedImage)
}

// Grabber runs the probe, scan and download pipeline. It holds no per-call state
// and is safe for concurrent use.
type Grabber struct {
	resolver   *sniff.Resolver
	extractor  *extract.Extractor
	downloader *decode.Downloader
	log        *logrus.Entry
}

// New validates cfg and wires the pipeline. A nil client is built from
// cfg.HTTPClientSettings.
func New(cfg config.Config, client *http.Client, log *logrus.Entry) (*Grabber, error) {
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	if client == nil {
		client = fetch.NewClient(cfg.HTTPClientSettings, log)
	}
	fetcher := fetch.NewFetcher(client, cfg, log)
	resolver := sniff.NewResolver(fetcher, log)

	return &Grabber{
		resolver:   resolver,
		extractor:  extract.NewExtractor(fetcher, cfg.MaxHTMLSizeBytes, log),
		downloader: decode.NewDownloader(fetcher, resolver, cfg.MaxImageSizeBytes, cfg.EffectiveAutoOrient(), log),
		log:        log,
	}, nil
}

// Fetch resolves rawURL to an image and decodes it. Returns nil when no image
// could be produced or ctx was cancelled; the image is owned by the caller.
func (g *Grabber) Fetch(ctx context.Context, rawURL string) *models.DecodedImage {
	req := models.NewFetchRequest(rawURL)
	reqLog := g.log.WithFields(logrus.Fields{"fetch_id": req.ID, "url": rawURL})

	ref, err := g.resolve(ctx, req, reqLog)
	if err != nil {
		g.logOutcome(reqLog, err)
		return nil
	}

	reqLog.WithFields(logrus.Fields{"state": models.StateDownloading, "image_url": ref.ImageURL}).Debug("Downloading image")
	img, err := g.downloader.Download(ctx, ref.ImageURL, ref.ContentType)
	if err != nil {
		g.logOutcome(reqLog, err)
		return nil
	}
	if ctx.Err() != nil {
		img.Release()
		g.logOutcome(reqLog, utils.Cancelled(ctx, "after download"))
		return nil
	}

	reqLog.WithFields(logrus.Fields{
		"state":  models.StateDone,
		"width":  img.Width,
		"height": img.Height,
		"format": img.Format,
	}).Info("Image fetched")
	return img
}

// FetchInto fetches rawURL and hands the image to display. The image is
// released instead when display is nil or no longer valid, or ctx was
// cancelled during the handoff. Reports whether display took the image.
func (g *Grabber) FetchInto(ctx context.Context, rawURL string, display Display) bool {
	img := g.Fetch(ctx, rawURL)
	if img == nil {
		return false
	}
	if ctx.Err() != nil || display == nil || !display.Valid() {
		g.log.WithField("url", rawURL).Debug("Display unavailable at handoff, releasing image")
		img.Release()
		return false
	}
	display.SetImage(img)
	return true
}

// Resolve runs only the resolution phase for req and returns the image URL to
// download along with its content type, without downloading it.
func (g *Grabber) Resolve(ctx context.Context, req models.FetchRequest) (*models.ResolvedImageRef, error) {
	return g.resolve(ctx, req, g.log.WithFields(logrus.Fields{"fetch_id": req.ID, "url": req.URL}))
}

func (g *Grabber) resolve(ctx context.Context, req models.FetchRequest, reqLog *logrus.Entry) (*models.ResolvedImageRef, error) {
	reqLog.WithField("state", models.StateProbingType).Debug("Probing content type")
	guess := g.resolver.Resolve(ctx, req.URL)
	if ctx.Err() != nil {
		return nil, utils.Cancelled(ctx, models.StateProbingType.String())
	}

	switch guess.Kind() {
	case models.KindImage:
		return models.NewResolvedImageRef(req.URL, guess)
	case models.KindHTML:
		// scanned below
	default:
		return nil, fmt.Errorf("%w: '%s' is %s", utils.ErrUnpursuedType, req.URL, guess.Kind())
	}

	reqLog.WithField("state", models.StateScanningHTML).Debug("Scanning page for an image")
	candidate, err := g.extractor.FindImage(ctx, req.URL)
	if ctx.Err() != nil {
		return nil, utils.Cancelled(ctx, models.StateScanningHTML.String())
	}
	if err != nil {
		return nil, err
	}

	// The candidate is downloaded whatever its probe says; the downloader's
	// dispatch has the final word.
	candidateType := g.resolver.Resolve(ctx, candidate)
	if ctx.Err() != nil {
		return nil, utils.Cancelled(ctx, "candidate probe")
	}
	reqLog.WithFields(logrus.Fields{"candidate": candidate, "content_type": candidateType.String()}).Debug("Found image candidate")
	return models.NewResolvedImageRef(candidate, candidateType)
}

func (g *Grabber) logOutcome(reqLog *logrus.Entry, err error) {
	entry := reqLog.WithField("error_type", utils.CategorizeError(err))
	switch {
	case errors.Is(err, utils.ErrCancelled):
		entry.Debug("Fetch cancelled")
	case errors.Is(err, utils.ErrNoCandidate), errors.Is(err, utils.ErrUnpursuedType):
		entry.Infof("No image: %v", err)
	default:
		entry.Warnf("No image: %v", err)
	}
}
