package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xucian/grabimg/pkg/config"
	"github.com/xucian/grabimg/pkg/fetch"
	"github.com/xucian/grabimg/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestFindOGImage(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "property then content",
			html: `<head><meta property="og:image" content="https://cdn.example.com/og.webp"></head>`,
			want: "https://cdn.example.com/og.webp",
		},
		{
			name: "content then property",
			html: `<meta content="https://cdn.example.com/og.jpg" property="og:image" />`,
			want: "https://cdn.example.com/og.jpg",
		},
		{
			name: "name attribute and single quotes",
			html: `<meta name='og:image' content='https://cdn.example.com/og.gif'>`,
			want: "https://cdn.example.com/og.gif",
		},
		{
			name: "upper case tag and extension",
			html: `<META PROPERTY="OG:IMAGE" CONTENT="https://cdn.example.com/OG.JPEG">`,
			want: "https://cdn.example.com/OG.JPEG",
		},
		{
			name: "query string kept",
			html: `<meta property="og:image" content="https://cdn.example.com/og.jpg?w=1200&amp;h=630">`,
			want: "https://cdn.example.com/og.jpg?w=1200&h=630",
		},
		{
			name: "secure_url variant",
			html: `<meta property="og:image:secure_url" content="https://cdn.example.com/s.bmp">`,
			want: "https://cdn.example.com/s.bmp",
		},
		{
			name: "width tag ignored",
			html: `<meta property="og:image:width" content="1200.jpg"><meta property="og:image" content="/real.jpg">`,
			want: "/real.jpg",
		},
		{
			name: "unknown extension skipped",
			html: `<meta property="og:image" content="https://cdn.example.com/og.png">`,
			want: "",
		},
		{
			name: "extension must end the value",
			html: `<meta property="og:image" content="https://cdn.example.com/og.jpg.png">`,
			want: "",
		},
		{
			name: "attributes spread over lines",
			html: "<meta\n  property=\"og:image\"\n  content=\"https://cdn.example.com/multi.webp\"\n>",
			want: "https://cdn.example.com/multi.webp",
		},
		{
			name: "earliest tag wins across attribute orders",
			html: `<meta property="og:image" content="/first.jpg"><meta content="/second.jpg" property="og:image">`,
			want: "/first.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindOGImage(tt.html))
		})
	}
}

func TestFindFirstImg(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"simple", `<img src="/a.jpg">`, "/a.jpg"},
		{"attributes before src", `<img class="hero" alt="x" src="https://x/b.webp?v=2" />`, "https://x/b.webp?v=2"},
		{"first with known extension", `<img src="/logo.svg"><img src="/icon.png"><img src="/photo.gif">`, "/photo.gif"},
		{"lazy data-src", `<img data-src="/lazy.jpeg" class="lazy">`, "/lazy.jpeg"},
		{"upper case", `<IMG SRC="/UP.BMP">`, "/UP.BMP"},
		{"srcset alone ignored", `<img srcset="/a.jpg 1x">`, ""},
		{"no images", `<p>hello</p>`, ""},
		{"unclosed markup tolerated", `<div><img src="/broken.jpg"<p>`, "/broken.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindFirstImg(tt.html))
		})
	}
}

func TestFindCandidate_PrefersOpenGraph(t *testing.T) {
	doc := `<html><head>
<meta property="og:image" content="https://cdn.example.com/og.webp">
</head><body>
<img src="https://example.com/logo.jpg">
</body></html>`

	got, err := FindCandidate(doc, "https://example.com/article")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/og.webp", got)
}

func TestFindCandidate_FallsBackToImg(t *testing.T) {
	doc := `<meta property="og:image" content="/og.png"><img src="/inline.jpg">`

	got, err := FindCandidate(doc, "https://example.com/blog/post")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/inline.jpg", got)
}

func TestFindCandidate_ResolvesRelative(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"images/a.jpg", "https://example.com/blog/images/a.jpg"},
		{"/a.jpg", "https://example.com/a.jpg"},
		{"//cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"http://other.example.com/a.jpg", "http://other.example.com/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := FindCandidate(`<img src="`+tt.ref+`">`, "https://example.com/blog/post")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindCandidate_NoCandidate(t *testing.T) {
	_, err := FindCandidate(`<html><body><p>No pictures here</p></body></html>`, "https://example.com/article2")
	assert.True(t, errors.Is(err, utils.ErrNoCandidate))

	_, err = FindCandidate("", "https://example.com/")
	assert.True(t, errors.Is(err, utils.ErrNoCandidate))
}

func TestExtractor_FindImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<meta property="og:image" content="/og.webp"><img src="/logo.jpg">`))
		case "/empty":
			w.Write([]byte(`<html></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := config.Default()
	fetcher := fetch.NewFetcher(fetch.NewClient(cfg.HTTPClientSettings, testLogger()), cfg, testLogger())
	ex := NewExtractor(fetcher, cfg.MaxHTMLSizeBytes, testLogger())

	got, err := ex.FindImage(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/og.webp", got)

	_, err = ex.FindImage(context.Background(), server.URL+"/empty")
	assert.True(t, errors.Is(err, utils.ErrNoCandidate))

	_, err = ex.FindImage(context.Background(), server.URL+"/missing")
	assert.True(t, errors.Is(err, utils.ErrNetwork))
	assert.False(t, errors.Is(err, utils.ErrNoCandidate))
}
