// Package assets loads and caches the static image and font assets used by
// the card renderer. The bundle is built once per process lifetime; every
// individual asset load fails soft so a missing file never aborts the build.
package assets

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/sync/singleflight"

	"github.com/wallet-cards/internal/logging"
)

// Asset file names inside the assets directory.
const (
	keyIconFile     = "bundle_2.png"
	jackpotIconFile = "jackpot_big.png"
	backgroundFile  = "background.png"
	regularFontFile = "fonts/regular.ttf"
	boldFontFile    = "fonts/bold.ttf"
	monoFontFile    = "fonts/mono.ttf"

	// preferredFallbackGif is used as the decor fallback when present.
	preferredFallbackGif = "ghost.gif"

	// DecorPublicPrefix is the public path prefix for decorative GIFs.
	DecorPublicPrefix = "/assets/"
)

// Fonts holds the parsed card typefaces. Any entry may be nil when the
// underlying file is unreadable; the composer falls back to a built-in face.
type Fonts struct {
	Regular *truetype.Font
	Bold    *truetype.Font
	Mono    *truetype.Font
}

// Bundle is the resolved asset set, immutable after the first build.
type Bundle struct {
	KeyIcon     image.Image
	JackpotIcon image.Image
	Background  image.Image
	Fonts       Fonts

	// DecorGifs maps public /assets/*.gif paths to the first decoded frame.
	DecorGifs map[string]image.Image
	// DecorPaths lists the public paths in lexicographic order.
	DecorPaths []string
	// FallbackDecorPath is empty when no decor GIF loaded at all.
	FallbackDecorPath string
}

// FallbackDecor returns the designated fallback frame, or nil when none of
// the decorative GIFs could be loaded.
func (b *Bundle) FallbackDecor() image.Image {
	if b.FallbackDecorPath == "" {
		return nil
	}
	return b.DecorGifs[b.FallbackDecorPath]
}

// DecorFrame returns the frame for a public path, falling back to the
// designated fallback when the path is unknown.
func (b *Bundle) DecorFrame(publicPath string) image.Image {
	if frame, ok := b.DecorGifs[publicPath]; ok {
		return frame
	}
	return b.FallbackDecor()
}

// Resolver builds and retains the asset bundle. Safe for concurrent use;
// concurrent first callers share a single in-flight build.
type Resolver struct {
	dir string

	group  singleflight.Group
	mu     sync.RWMutex
	bundle *Bundle
}

// NewResolver creates a resolver rooted at the given assets directory.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the asset bundle, building it on first call. The build
// itself never fails; unreadable assets yield nil placeholders.
func (r *Resolver) Resolve(ctx context.Context) (*Bundle, error) {
	r.mu.RLock()
	bundle := r.bundle
	r.mu.RUnlock()
	if bundle != nil {
		return bundle, nil
	}

	value, err, _ := r.group.Do("bundle", func() (interface{}, error) {
		built := r.build(ctx)
		r.mu.Lock()
		r.bundle = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Bundle), nil
}

// ListDecorGifs returns the sorted public paths of all decorative GIFs.
func (r *Resolver) ListDecorGifs(ctx context.Context) ([]string, error) {
	bundle, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return bundle.DecorPaths, nil
}

func (r *Resolver) build(ctx context.Context) *Bundle {
	logger := logging.FromContext(ctx).WithField("assetsDir", r.dir)

	bundle := &Bundle{
		KeyIcon:     r.loadImage(logger, keyIconFile),
		JackpotIcon: r.loadImage(logger, jackpotIconFile),
		Background:  r.loadImage(logger, backgroundFile),
		Fonts: Fonts{
			Regular: r.loadFont(logger, regularFontFile),
			Bold:    r.loadFont(logger, boldFontFile),
			Mono:    r.loadFont(logger, monoFontFile),
		},
		DecorGifs: make(map[string]image.Image),
	}

	r.loadDecorGifs(logger, bundle)

	logger.WithFields(map[string]interface{}{
		"decorGifs":  len(bundle.DecorGifs),
		"hasKeyIcon": bundle.KeyIcon != nil,
	}).Info("Asset bundle built")

	return bundle
}

// loadDecorGifs discovers *.gif files in the assets directory, decodes each
// first frame independently and picks the fallback entry.
func (r *Resolver) loadDecorGifs(logger *logging.Logger, bundle *Bundle) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		logger.WithError(err).Warn("Could not list assets directory for decor GIFs")
		return
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".gif") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		frame := r.loadGifFrame(logger, name)
		if frame == nil {
			continue
		}
		publicPath := DecorPublicPrefix + name
		bundle.DecorGifs[publicPath] = frame
		bundle.DecorPaths = append(bundle.DecorPaths, publicPath)

		if bundle.FallbackDecorPath == "" || strings.EqualFold(name, preferredFallbackGif) {
			bundle.FallbackDecorPath = publicPath
		}
	}
}

func (r *Resolver) loadImage(logger *logging.Logger, name string) image.Image {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		logger.WithError(err).WithField("asset", name).Warn("Asset unreadable, using placeholder")
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.WithError(err).WithField("asset", name).Warn("Asset undecodable, using placeholder")
		return nil
	}
	return img
}

func (r *Resolver) loadGifFrame(logger *logging.Logger, name string) image.Image {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		logger.WithError(err).WithField("asset", name).Warn("Decor GIF unreadable, skipping")
		return nil
	}

	frame, err := gif.Decode(bytes.NewReader(data))
	if err != nil {
		logger.WithError(err).WithField("asset", name).Warn("Decor GIF undecodable, skipping")
		return nil
	}
	return frame
}

func (r *Resolver) loadFont(logger *logging.Logger, name string) *truetype.Font {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		logger.WithError(err).WithField("asset", name).Warn("Font unreadable, composer will fall back")
		return nil
	}

	font, err := truetype.Parse(data)
	if err != nil {
		logger.WithError(err).WithField("asset", name).Warn("Font unparsable, composer will fall back")
		return nil
	}
	return font
}
