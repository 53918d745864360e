package models

import "strings"

// ContentKind classifies a content-type string
type ContentKind string

const (
	KindUnknown ContentKind = ""      // Absent or empty content type
	KindImage   ContentKind = "image" // image/*
	KindHTML    ContentKind = "html"  // text/html
	KindOther   ContentKind = "other" // Anything else, e.g. application/octet-stream
)

// String implements fmt.Stringer for logging
func (k ContentKind) String() string {
	if k == "" {
		return "unknown"
	}
	return string(k)
}

// IsPursued returns true for the kinds the pipeline follows up on
func (k ContentKind) IsPursued() bool {
	switch k {
	case KindImage, KindHTML:
		return true
	}
	return false
}

// ContentTypeGuess wraps a raw content-type value (header or extension derived)
type ContentTypeGuess struct {
	Raw string
}

// Guess builds a ContentTypeGuess from a raw value
func Guess(raw string) ContentTypeGuess {
	return ContentTypeGuess{Raw: raw}
}

// mediaType returns the lowercased type/subtype without parameters
func (g ContentTypeGuess) mediaType() string {
	mt := g.Raw
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Kind classifies the guess into exactly one ContentKind
func (g ContentTypeGuess) Kind() ContentKind {
	mt := g.mediaType()
	switch {
	case mt == "":
		return KindUnknown
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "text/html"):
		return KindHTML
	default:
		return KindOther
	}
}

// Subtype returns the image subtype ("webp", "jpeg", ...) or "" for non-images
func (g ContentTypeGuess) Subtype() string {
	if g.Kind() != KindImage {
		return ""
	}
	return strings.TrimPrefix(g.mediaType(), "image/")
}

func (g ContentTypeGuess) IsImage() bool   { return g.Kind() == KindImage }
func (g ContentTypeGuess) IsHTML() bool    { return g.Kind() == KindHTML }
func (g ContentTypeGuess) IsUnknown() bool { return g.Kind() == KindUnknown }
func (g ContentTypeGuess) IsWebP() bool    { return g.Subtype() == "webp" }

// String returns the raw value, or "unknown" when absent
func (g ContentTypeGuess) String() string {
	if g.Raw == "" {
		return "unknown"
	}
	return g.Raw
}

// PipelineState names a step of the resolve-and-fetch state machine
type PipelineState string

const (
	StateProbingType  PipelineState = "probing_type"
	StateScanningHTML PipelineState = "scanning_html"
	StateDownloading  PipelineState = "downloading"
	StateDone         PipelineState = "done"
)

// String implements fmt.Stringer for logging
func (s PipelineState) String() string {
	return string(s)
}
