// Package decode downloads image bytes and turns them into bitmaps, sending
// WebP through a dedicated decoder and everything else through the general one.
package decode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime/debug"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp" // registers BMP with the general decoder
	"golang.org/x/image/webp"

	"github.com/xucian/grabimg/pkg/models"
	"github.com/xucian/grabimg/pkg/sniff"
	"github.com/xucian/grabimg/pkg/utils"
)

// Buffers that grew past this are dropped instead of pooled
const maxPooledBufferSize = 8 << 20

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBufferSize {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// BytesFetcher downloads a body into buf, bounded by maxBytes
type BytesFetcher interface {
	GetBytes(ctx context.Context, rawURL string, maxBytes int64, buf *bytes.Buffer) (string, error)
}

// TypeResolver resolves a URL's content type when the caller does not know it
type TypeResolver interface {
	Resolve(ctx context.Context, rawURL string) models.ContentTypeGuess
}

// Downloader fetches image bytes and decodes them
type Downloader struct {
	fetcher    BytesFetcher
	resolver   TypeResolver
	maxBytes   int64
	autoOrient bool
	log        *logrus.Entry
}

// NewDownloader creates a Downloader. maxBytes <= 0 means unlimited.
func NewDownloader(fetcher BytesFetcher, resolver TypeResolver, maxBytes int64, autoOrient bool, log *logrus.Entry) *Downloader {
	return &Downloader{
		fetcher:    fetcher,
		resolver:   resolver,
		maxBytes:   maxBytes,
		autoOrient: autoOrient,
		log:        log,
	}
}

// UsesWebPPath reports whether rawURL must go through the WebP decoder
func UsesWebPPath(rawURL string, contentType models.ContentTypeGuess) bool {
	return contentType.IsWebP() || sniff.HasWebPExtension(rawURL)
}

// Download fetches rawURL and decodes it. An unknown contentType is resolved first;
// a known one is trusted as-is. The returned image is owned by the caller.
func (d *Downloader) Download(ctx context.Context, rawURL string, contentType models.ContentTypeGuess) (*models.DecodedImage, error) {
	dlLog := d.log.WithField("url", rawURL)

	if contentType.IsUnknown() {
		contentType = d.resolver.Resolve(ctx, rawURL)
		if ctx.Err() != nil {
			return nil, utils.Cancelled(ctx, "download type probe")
		}
	}

	useWebP := UsesWebPPath(rawURL, contentType)
	dlLog = dlLog.WithFields(logrus.Fields{"content_type": contentType.String(), "webp_path": useWebP})

	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := d.fetcher.GetBytes(ctx, rawURL, d.maxBytes, buf); err != nil {
		return nil, fmt.Errorf("download '%s': %w", rawURL, err)
	}
	if ctx.Err() != nil {
		return nil, utils.Cancelled(ctx, "download")
	}

	data := buf.Bytes()
	var img image.Image
	var err error
	if useWebP {
		img, err = DecodeWebP(data)
	} else {
		img, err = DecodeGeneral(data, d.autoOrient)
	}
	if err != nil {
		return nil, fmt.Errorf("decode '%s': %w", rawURL, err)
	}

	format := mimetype.Detect(data).String()
	decoded := models.NewDecodedImage(img, format, rawURL, len(data))
	dlLog.WithFields(logrus.Fields{"width": decoded.Width, "height": decoded.Height, "format": format}).Debug("Decoded image")
	return decoded, nil
}

// DecodeWebP decodes data with the WebP decoder
func DecodeWebP(data []byte) (image.Image, error) {
	return safeDecode("webp", func() (image.Image, error) {
		return webp.Decode(bytes.NewReader(data))
	})
}

// DecodeGeneral decodes data with whichever registered format matches (JPEG, GIF, PNG, BMP, WebP).
// autoOrient applies the EXIF orientation tag.
func DecodeGeneral(data []byte, autoOrient bool) (image.Image, error) {
	return safeDecode("general", func() (image.Image, error) {
		return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(autoOrient))
	})
}

// safeDecode wraps a decoder call: errors, panics and empty bitmaps all become ErrDecodeFailure
func safeDecode(path string, fn func() (image.Image, error)) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%w: %s decoder panicked: %v\n%s", utils.ErrDecodeFailure, path, r, debug.Stack())
		}
	}()

	img, err = fn()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrDecodeFailure, path, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %s: empty bitmap %dx%d", utils.ErrDecodeFailure, path, b.Dx(), b.Dy())
	}
	return img, nil
}
