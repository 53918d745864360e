package models

import (
	"fmt"
	"image"

	"github.com/google/uuid"

	"github.com/xucian/grabimg/pkg/utils"
)

// FetchRequest identifies one pipeline call. Cancellation travels in the context passed alongside it.
type FetchRequest struct {
	ID  string // Correlates every log line of one call
	URL string // Input URL as supplied by the caller
}

// NewFetchRequest creates a request with a fresh ID
func NewFetchRequest(rawURL string) FetchRequest {
	return FetchRequest{
		ID:  uuid.New().String(),
		URL: rawURL,
	}
}

// ResolvedImageRef is the output of the resolution phase and the input of the download phase.
// Absence is expressed with a nil *ResolvedImageRef, never with an empty ImageURL.
type ResolvedImageRef struct {
	ImageURL    string
	ContentType ContentTypeGuess // May be unknown; the downloader re-resolves it
}

// NewResolvedImageRef builds a ref, rejecting an empty image URL
func NewResolvedImageRef(imageURL string, contentType ContentTypeGuess) (*ResolvedImageRef, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("%w: empty image URL", utils.ErrInvalidRef)
	}
	return &ResolvedImageRef{ImageURL: imageURL, ContentType: contentType}, nil
}

// DecodedImage is a decoded bitmap owned by whoever holds it last
type DecodedImage struct {
	Image     image.Image
	Width     int
	Height    int
	Format    string // MIME type sniffed from the downloaded bytes, e.g. "image/webp"
	SourceURL string // URL the bytes were fetched from
	Bytes     int    // Size of the encoded payload
	released  bool
}

// NewDecodedImage wraps img and records its dimensions
func NewDecodedImage(img image.Image, format, sourceURL string, size int) *DecodedImage {
	b := img.Bounds()
	return &DecodedImage{
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    format,
		SourceURL: sourceURL,
		Bytes:     size,
	}
}

// Release drops the pixel buffer. Safe to call more than once and on a nil receiver.
func (d *DecodedImage) Release() {
	if d == nil || d.released {
		return
	}
	d.Image = nil
	d.released = true
}

// Released reports whether Release has been called
func (d *DecodedImage) Released() bool {
	return d != nil && d.released
}
