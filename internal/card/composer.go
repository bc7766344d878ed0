// Package card renders the shareable player card PNG. The layout is a fixed
// 1600x520 scene: a rounded panel over a gradient background, an avatar
// circle, a net-amount pill colored by tone, four stat cards and four meta
// cards. Every optional ingredient (avatar, icons, background, decor) has a
// fallback so rendering only fails on an invalid request or a PNG encode
// error.
package card

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/wallet-cards/internal/assets"
	"github.com/wallet-cards/internal/normalize"
	"github.com/wallet-cards/internal/types"
)

// Canvas and panel geometry.
const (
	CardWidth  = 1600
	CardHeight = 520

	panelX = 18
	panelY = 18

	statGap    = 16.0
	statHeight = 102.0
	metaHeight = 56.0

	pillMinWidth = 340.0
	pillMaxWidth = 520.0
	pillHeight   = 66.0
)

// maxNameGlyphs bounds the display name inside the card header.
const maxNameGlyphs = 18

// netPalette is the three-way pill color scheme keyed on net tone.
type netPalette struct {
	text   color.NRGBA
	fill   color.NRGBA
	stroke color.NRGBA
}

var netPalettes = map[types.NetTone]netPalette{
	types.TonePositive: {
		text:   color.NRGBA{R: 0xbf, G: 0xff, B: 0xd7, A: 0xff},
		fill:   color.NRGBA{R: 84, G: 220, B: 150, A: 43},
		stroke: color.NRGBA{R: 120, G: 255, B: 188, A: 112},
	},
	types.ToneNegative: {
		text:   color.NRGBA{R: 0xff, G: 0xb8, B: 0xbf, A: 0xff},
		fill:   color.NRGBA{R: 255, G: 129, B: 156, A: 41},
		stroke: color.NRGBA{R: 255, G: 155, B: 175, A: 115},
	},
	types.ToneNeutral: {
		text:   color.NRGBA{R: 0xff, G: 0xd9, B: 0x89, A: 0xff},
		fill:   color.NRGBA{R: 255, G: 207, B: 100, A: 41},
		stroke: color.NRGBA{R: 255, G: 207, B: 100, A: 102},
	},
}

// Composer renders player cards from normalized requests and resolved
// assets. Safe for concurrent use; each render works on its own context.
type Composer struct {
	resolver *assets.Resolver
}

// NewComposer creates a card composer over the given asset resolver.
func NewComposer(resolver *assets.Resolver) *Composer {
	return &Composer{resolver: resolver}
}

// Render rasterizes the card scene to PNG bytes. The avatar and decor
// images are optional; nil skips them. The request must be a normalized
// record with a canonical wallet.
func (c *Composer) Render(ctx context.Context, req *types.CardRequest, avatar image.Image, decor image.Image) ([]byte, error) {
	if req == nil || !normalize.ValidWallet(req.Wallet) {
		return nil, types.NewServiceError(types.CodeInvalidWallet, "Invalid wallet format")
	}

	bundle, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(CardWidth, CardHeight)
	scene := &sceneContext{dc: dc, fonts: bundle.Fonts}

	panelW := float64(CardWidth - panelX*2)
	panelH := float64(CardHeight - panelY*2)
	leftPad := float64(panelX + 34)
	topPad := float64(panelY + 34)

	scene.drawBackground(bundle.Background)
	scene.drawPanel(panelW, panelH)

	if decor != nil {
		scene.drawDecor(decor, panelW, panelH)
	}

	displayName := clampName(req.DisplayName)
	scene.drawAvatar(avatar, displayName, leftPad, topPad)
	scene.drawHeader(displayName, req.ShortWallet, leftPad, topPad)
	scene.drawNetPill(req.NetEth, req.NetTone, panelW, topPad)

	statY := float64(panelY + 132)
	statW := (panelW - 72 - statGap*3) / 4
	scene.drawStatCard(float64(panelX+36), statY, statW, "KEY SPEND", req.KeySpendEth, bundle.KeyIcon, 29)
	scene.drawStatCard(float64(panelX+36)+(statW+statGap), statY, statW, "WEEKLY CLAIMS", req.WeeklyClaimsEth, nil, 0)
	scene.drawStatCard(float64(panelX+36)+(statW+statGap)*2, statY, statW, "JACKPOT CLAIMS", req.JackpotClaimsEth, bundle.JackpotIcon, 23)
	scene.drawStatCard(float64(panelX+36)+(statW+statGap)*3, statY, statW, "TOTAL CLAIMS", req.TotalClaimsEth, nil, 0)

	metaY1 := float64(panelY + 252)
	metaY2 := float64(panelY + 326)
	metaW := (panelW - 72 - statGap) / 2
	scene.drawMetaCard(float64(panelX+36), metaY1, metaW, fmt.Sprintf("Keys bought: %s", req.KeysBought))
	scene.drawMetaCard(float64(panelX+36)+metaW+statGap, metaY1, metaW, fmt.Sprintf("Purchase events: %s", req.PurchaseEvents))
	scene.drawMetaCard(float64(panelX+36), metaY2, metaW, fmt.Sprintf("Weekly events: %s", req.WeeklyEvents))
	scene.drawMetaCard(float64(panelX+36)+metaW+statGap, metaY2, metaW, fmt.Sprintf("Jackpot events: %s", req.JackpotEvents))

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, types.NewServiceError(types.CodeRenderFailed, fmt.Sprintf("PNG encode failed: %v", err))
	}
	return buf.Bytes(), nil
}

// sceneContext groups the drawing context with the card typefaces.
type sceneContext struct {
	dc    *gg.Context
	fonts assets.Fonts
}

// face returns a sized typeface, falling back to the built-in bitmap face
// when the TrueType font did not load.
func (s *sceneContext) face(f *truetype.Font, size float64) font.Face {
	if f == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(f, &truetype.Options{Size: size})
}

func (s *sceneContext) drawBackground(background image.Image) {
	if background != nil {
		drawImageCover(s.dc, background, 0, 0, CardWidth, CardHeight)
		return
	}

	gradient := gg.NewLinearGradient(0, 0, CardWidth, CardHeight)
	gradient.AddColorStop(0, color.NRGBA{R: 0x0a, G: 0x17, B: 0x27, A: 0xff})
	gradient.AddColorStop(0.52, color.NRGBA{R: 0x12, G: 0x30, B: 0x49, A: 0xff})
	gradient.AddColorStop(1, color.NRGBA{R: 0x0d, G: 0x2f, B: 0x3f, A: 0xff})
	s.dc.SetFillStyle(gradient)
	s.dc.DrawRectangle(0, 0, CardWidth, CardHeight)
	s.dc.Fill()
}

func (s *sceneContext) drawPanel(panelW, panelH float64) {
	gradient := gg.NewLinearGradient(panelX, panelY, panelX+panelW, panelY+panelH)
	gradient.AddColorStop(0, color.NRGBA{R: 118, G: 211, B: 255, A: 31})
	gradient.AddColorStop(1, color.NRGBA{R: 11, G: 29, B: 48, A: 230})

	s.dc.DrawRoundedRectangle(panelX, panelY, panelW, panelH, 26)
	s.dc.SetFillStyle(gradient)
	s.dc.FillPreserve()
	s.dc.SetColor(color.NRGBA{R: 130, G: 188, B: 230, A: 87})
	s.dc.SetLineWidth(3)
	s.dc.Stroke()
}

// drawDecor places the decorative frame against the panel's right edge at
// reduced alpha so it sits behind the foreground cards visually.
func (s *sceneContext) drawDecor(decor image.Image, panelW, panelH float64) {
	const size = 180.0
	x := panelX + panelW - size - 24
	y := panelY + panelH - size - 24
	drawImageFaded(s.dc, decor, x, y, size, 72)
}

func (s *sceneContext) drawAvatar(avatar image.Image, displayName string, leftPad, topPad float64) {
	cx := leftPad + 44
	cy := topPad + 44

	if avatar != nil {
		s.dc.DrawCircle(cx, cy, 40)
		s.dc.SetColor(color.NRGBA{R: 0x18, G: 0x36, B: 0x4f, A: 0xff})
		s.dc.FillPreserve()
		s.dc.SetColor(color.NRGBA{R: 110, G: 198, B: 255, A: 219})
		s.dc.SetLineWidth(4)
		s.dc.Stroke()

		s.dc.Push()
		s.dc.DrawCircle(cx, cy, 38)
		s.dc.Clip()
		drawImageCover(s.dc, avatar, leftPad+6, topPad+6, 76, 76)
		s.dc.Pop()
		return
	}

	gradient := gg.NewLinearGradient(cx-40, cy-40, cx+40, cy+40)
	gradient.AddColorStop(0, color.NRGBA{R: 0x4b, G: 0xb9, B: 0xff, A: 0xff})
	gradient.AddColorStop(1, color.NRGBA{R: 0x2c, G: 0xe9, B: 0xb8, A: 0xff})
	s.dc.DrawCircle(cx, cy, 40)
	s.dc.SetFillStyle(gradient)
	s.dc.Fill()

	initial := "?"
	if displayName != "" {
		initial = strings.ToUpper(string([]rune(displayName)[0]))
	}
	s.dc.SetFontFace(s.face(s.fonts.Bold, 40))
	s.dc.SetColor(color.NRGBA{R: 0x06, G: 0x26, B: 0x38, A: 0xff})
	s.dc.DrawStringAnchored(initial, cx, topPad+58, 0.5, 0)
}

func (s *sceneContext) drawHeader(displayName, shortWallet string, leftPad, topPad float64) {
	s.dc.SetFontFace(s.face(s.fonts.Bold, 56))
	s.dc.SetColor(color.NRGBA{R: 0xed, G: 0xf7, B: 0xff, A: 0xff})
	s.dc.DrawString(displayName, leftPad+118, topPad+40)

	s.dc.SetFontFace(s.face(s.fonts.Mono, 22))
	s.dc.SetColor(color.NRGBA{R: 0x9e, G: 0xb8, B: 0xd1, A: 0xff})
	s.dc.DrawString(fmt.Sprintf("(%s)", shortWallet), leftPad+118, topPad+88)
}

func (s *sceneContext) drawNetPill(netEth string, tone types.NetTone, panelW, topPad float64) {
	palette, ok := netPalettes[tone]
	if !ok {
		palette = netPalettes[types.ToneNeutral]
	}

	label := fmt.Sprintf("Net %s ETH", netEth)
	pillW := math.Max(pillMinWidth, math.Min(pillMaxWidth, 90+float64(len(label))*18))
	pillX := panelX + panelW - pillW - 28
	pillY := topPad + 2

	s.dc.DrawRoundedRectangle(pillX, pillY, pillW, pillHeight, pillHeight/2)
	s.dc.SetColor(palette.fill)
	s.dc.FillPreserve()
	s.dc.SetColor(palette.stroke)
	s.dc.SetLineWidth(2.5)
	s.dc.Stroke()

	s.dc.SetFontFace(s.face(s.fonts.Bold, 32))
	s.dc.SetColor(palette.text)
	s.dc.DrawStringAnchored(label, pillX+pillW/2, pillY+44, 0.5, 0)
}

func (s *sceneContext) drawStatCard(x, y, w float64, label, value string, icon image.Image, iconSize float64) {
	s.dc.DrawRoundedRectangle(x, y, w, statHeight, 24)
	s.dc.SetColor(color.NRGBA{R: 6, G: 22, B: 37, A: 143})
	s.dc.FillPreserve()
	s.dc.SetColor(color.NRGBA{R: 114, G: 183, B: 230, A: 77})
	s.dc.SetLineWidth(2)
	s.dc.Stroke()

	if icon != nil {
		shellX := x + w - 50
		shellY := y + 10
		s.dc.DrawRoundedRectangle(shellX, shellY, 34, 34, 10)
		s.dc.SetColor(color.NRGBA{R: 8, G: 26, B: 43, A: 173})
		s.dc.FillPreserve()
		s.dc.SetColor(color.NRGBA{R: 130, G: 188, B: 230, A: 87})
		s.dc.SetLineWidth(1.5)
		s.dc.Stroke()

		offset := (34 - iconSize) / 2
		drawImageCover(s.dc, icon, shellX+offset, shellY+offset, iconSize, iconSize)
	}

	s.dc.SetFontFace(s.face(s.fonts.Bold, 16))
	s.dc.SetColor(color.NRGBA{R: 0x9e, G: 0xb8, B: 0xd1, A: 0xff})
	s.dc.DrawString(label, x+24, y+34)

	s.dc.SetFontFace(s.face(s.fonts.Bold, 26))
	s.dc.SetColor(color.NRGBA{R: 0xed, G: 0xf7, B: 0xff, A: 0xff})
	s.dc.DrawString(fmt.Sprintf("%s ETH", value), x+24, y+78)
}

func (s *sceneContext) drawMetaCard(x, y, w float64, text string) {
	s.dc.DrawRoundedRectangle(x, y, w, metaHeight, 20)
	s.dc.SetColor(color.NRGBA{R: 6, G: 22, B: 37, A: 112})
	s.dc.FillPreserve()
	s.dc.SetColor(color.NRGBA{R: 114, G: 183, B: 230, A: 59})
	s.dc.SetLineWidth(2)
	s.dc.Stroke()

	s.dc.SetFontFace(s.face(s.fonts.Regular, 20))
	s.dc.SetColor(color.NRGBA{R: 0xaa, G: 0xc4, B: 0xdb, A: 0xff})
	s.dc.DrawString(text, x+22, y+37)
}

// clampName shortens long display names with an ellipsis so the header
// never collides with the net pill.
func clampName(name string) string {
	runes := []rune(name)
	if len(runes) <= maxNameGlyphs {
		return name
	}
	return string(runes[:maxNameGlyphs-1]) + "..."
}

// drawImageCover scales the image to cover the target box, preserving
// aspect ratio and cropping the overflow.
func drawImageCover(dc *gg.Context, img image.Image, x, y, w, h float64) {
	bounds := img.Bounds()
	srcW := float64(bounds.Dx())
	srcH := float64(bounds.Dy())
	if srcW == 0 || srcH == 0 {
		return
	}

	scale := math.Max(w/srcW, h/srcH)
	dc.Push()
	dc.Translate(x+w/2, y+h/2)
	dc.Scale(scale, scale)
	dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
	dc.Pop()
}

// drawImageFaded composites the image into a size x size box at the given
// alpha, bypassing the vector pipeline with a masked raster blit.
func drawImageFaded(dc *gg.Context, img image.Image, x, y, size float64, alpha uint8) {
	scaled := gg.NewContext(int(size), int(size))
	drawImageCover(scaled, img, 0, 0, size, size)

	dst, ok := dc.Image().(draw.Image)
	if !ok {
		return
	}

	rect := image.Rect(int(x), int(y), int(x+size), int(y+size))
	mask := image.NewUniform(color.Alpha{A: alpha})
	draw.DrawMask(dst, rect, scaled.Image(), image.Point{}, mask, image.Point{}, draw.Over)
}
