package models

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xucian/grabimg/pkg/utils"
)

func TestContentTypeGuess_Kind(t *testing.T) {
	tests := []struct {
		raw     string
		kind    ContentKind
		subtype string
	}{
		{"image/webp", KindImage, "webp"},
		{"IMAGE/JPEG", KindImage, "jpeg"},
		{"image/png; charset=binary", KindImage, "png"},
		{"text/html", KindHTML, ""},
		{"text/html; charset=utf-8", KindHTML, ""},
		{"Text/HTML", KindHTML, ""},
		{"application/octet-stream", KindOther, ""},
		{"text/plain", KindOther, ""},
		{"", KindUnknown, ""},
		{"   ", KindUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			g := Guess(tt.raw)
			assert.Equal(t, tt.kind, g.Kind())
			assert.Equal(t, tt.subtype, g.Subtype())
		})
	}
}

func TestContentTypeGuess_Predicates(t *testing.T) {
	assert.True(t, Guess("image/webp").IsWebP())
	assert.False(t, Guess("image/jpeg").IsWebP())
	assert.True(t, Guess("text/html").IsHTML())
	assert.True(t, Guess("").IsUnknown())
	assert.Equal(t, "unknown", Guess("").String())
	assert.Equal(t, "image/gif", Guess("image/gif").String())
}

func TestContentKind_IsPursued(t *testing.T) {
	assert.True(t, KindImage.IsPursued())
	assert.True(t, KindHTML.IsPursued())
	assert.False(t, KindOther.IsPursued())
	assert.False(t, KindUnknown.IsPursued())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestNewResolvedImageRef(t *testing.T) {
	ref, err := NewResolvedImageRef("https://example.com/a.jpg", Guess("image/jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.jpg", ref.ImageURL)
	assert.True(t, ref.ContentType.IsImage())

	ref, err = NewResolvedImageRef("", Guess("image/jpeg"))
	assert.Nil(t, ref)
	assert.True(t, errors.Is(err, utils.ErrInvalidRef))
}

func TestNewFetchRequest_UniqueIDs(t *testing.T) {
	a := NewFetchRequest("https://example.com")
	b := NewFetchRequest("https://example.com")
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "https://example.com", a.URL)
}

func TestDecodedImage_Release(t *testing.T) {
	img := NewDecodedImage(image.NewRGBA(image.Rect(0, 0, 4, 3)), "image/png", "https://x/y.png", 42)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.False(t, img.Released())

	img.Release()
	assert.Nil(t, img.Image)
	assert.True(t, img.Released())

	assert.NotPanics(t, func() { img.Release() })

	var nilImg *DecodedImage
	assert.NotPanics(t, func() { nilImg.Release() })
	assert.False(t, nilImg.Released())
}
