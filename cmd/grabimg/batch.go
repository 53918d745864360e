package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xucian/grabimg/pkg/fetch"
	"github.com/xucian/grabimg/pkg/models"
	"github.com/xucian/grabimg/pkg/sniff"
	"github.com/xucian/grabimg/pkg/utils"
)

// imageFetcher is the part of grab.Grabber the batch needs
type imageFetcher interface {
	Fetch(ctx context.Context, rawURL string) *models.DecodedImage
}

// fitSize bounds saved images; zero means keep the original size
type fitSize struct {
	Width, Height int
}

func (f fitSize) isZero() bool { return f.Width == 0 && f.Height == 0 }

// result is the outcome for one input URL
type result struct {
	URL     string
	Image   *models.DecodedImage // nil on a miss; pixels are released once saved
	SavedTo string
	Err     error // save or scheduling failure; a plain miss has no error
}

// batch fetches many URLs concurrently, bounded overall and per host
type batch struct {
	fetcher     imageFetcher
	hosts       *fetch.HostSemaphorePool
	concurrency int
	outDir      string
	fit         fitSize
	log         *logrus.Entry
}

// Run fetches every URL and returns results in input order.
// URLs that are equal after canonicalization are fetched once and share a result.
func (b *batch) Run(ctx context.Context, urls []string) []result {
	results := make([]result, len(urls))
	firstSeen := make(map[string]int, len(urls))
	duplicateOf := make(map[int]int)

	var g errgroup.Group
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}
	for i, rawURL := range urls {
		key, err := fetch.CanonicalURL(rawURL)
		if err != nil {
			key = rawURL
		}
		if first, seen := firstSeen[key]; seen {
			duplicateOf[i] = first
			b.log.WithField("url", rawURL).Debugf("Duplicate of input #%d, fetching once", first+1)
			continue
		}
		firstSeen[key] = i

		g.Go(func() error {
			results[i] = b.fetchOne(ctx, rawURL)
			return nil
		})
	}
	g.Wait()

	for i, first := range duplicateOf {
		dup := results[first]
		dup.URL = urls[i]
		results[i] = dup
	}
	return results
}

func (b *batch) fetchOne(ctx context.Context, rawURL string) result {
	res := result{URL: rawURL}
	urlLog := b.log.WithField("url", rawURL)

	release, err := b.hosts.AcquireURL(ctx, rawURL)
	if err != nil {
		res.Err = utils.WrapErrorf(err, "waiting for host permit")
		urlLog.Debugf("Host permit not acquired: %v", err)
		return res
	}
	img := b.fetcher.Fetch(ctx, rawURL)
	release()

	if img == nil {
		return res
	}
	res.Image = img
	// Only the metadata outlives this call
	defer img.Release()

	if b.outDir != "" {
		saved, err := saveImage(img, b.outDir, b.fit)
		if err != nil {
			res.Err = err
			urlLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Saving image failed: %v", err)
			return res
		}
		res.SavedTo = saved
		urlLog.WithField("path", saved).Debug("Saved image")
	}
	return res
}

// saveImage writes img as PNG under dir, downscaled to fit when requested
func saveImage(img *models.DecodedImage, dir string, fit fitSize) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir '%s': %w", dir, err)
	}

	out := img.Image
	if !fit.isZero() {
		w, h := fit.Width, fit.Height
		if w == 0 {
			w = img.Width
		}
		if h == 0 {
			h = img.Height
		}
		out = imaging.Fit(out, w, h, imaging.Lanczos)
	}

	target := filepath.Join(dir, outputFilename(img.SourceURL))
	if err := imaging.Save(out, target); err != nil {
		return "", fmt.Errorf("save '%s': %w", target, err)
	}
	return target, nil
}

// outputFilename derives a stable PNG name from the image URL: the sanitized
// base name plus a short hash so distinct URLs never collide.
func outputFilename(srcURL string) string {
	var base string
	if u, err := url.Parse(srcURL); err == nil {
		base = path.Base(u.Path)
	} else {
		base = path.Base(sniff.StripQuery(srcURL))
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "/" || base == "." {
		base = ""
	}
	return fmt.Sprintf("%s-%s.png", utils.SanitizeFilename(base), utils.CalculateStringSHA256(srcURL)[:8])
}

// parseFit parses "WxH"; either side may be 0 to leave it unconstrained
func parseFit(s string) (fitSize, error) {
	if s == "" {
		return fitSize{}, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return fitSize{}, fmt.Errorf("'%s' is not WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w < 0 {
		return fitSize{}, fmt.Errorf("bad width in '%s'", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 {
		return fitSize{}, fmt.Errorf("bad height in '%s'", s)
	}
	if w == 0 && h == 0 {
		return fitSize{}, fmt.Errorf("'%s' constrains nothing", s)
	}
	return fitSize{Width: w, Height: h}, nil
}

// printResults writes one line per URL and returns the number of misses
func printResults(w io.Writer, results []result) int {
	misses := 0
	for _, r := range results {
		if r.Image == nil {
			misses++
			if r.Err != nil {
				fmt.Fprintf(w, "MISS %s (%v)\n", r.URL, r.Err)
			} else {
				fmt.Fprintf(w, "MISS %s\n", r.URL)
			}
			continue
		}
		line := fmt.Sprintf("OK   %s %dx%d %s %s", r.URL, r.Image.Width, r.Image.Height,
			r.Image.Format, humanize.Bytes(uint64(r.Image.Bytes)))
		if r.sourceDiffers() {
			line += " via " + r.Image.SourceURL
		}
		if r.SavedTo != "" {
			line += " -> " + r.SavedTo
		}
		if r.Err != nil {
			line += fmt.Sprintf(" (save failed: %v)", r.Err)
		}
		fmt.Fprintln(w, line)
	}
	return misses
}

// sourceDiffers reports whether the image came from a URL other than the input
func (r result) sourceDiffers() bool {
	return r.Image != nil && r.Image.SourceURL != r.URL
}
