// Package render composes the visual artifacts the bot attaches to its
// messages: the welcome card PNG and the engagement chart.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	cardWidth  = 1200
	cardHeight = 675

	panelWidth  = 1000
	panelHeight = 400
	panelRadius = 48
)

type CardRequest struct {
	// Page selects the copy: 1 = choices, 2 = confirm.
	Page int

	// MemberTag is the member's display tag, e.g. "@alice".
	MemberTag string

	// SelectedLabel, when set, is echoed back on the card.
	SelectedLabel string
}

type CardOptions struct {
	// BackgroundPath points at an optional local background image. A
	// missing or unreadable file degrades to a flat fill.
	BackgroundPath string
}

// RenderCard composes the welcome card as PNG bytes.
func RenderCard(req CardRequest, opts CardOptions) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))

	bg := loadBackground(opts.BackgroundPath)
	if bg != nil {
		coverScale(dst, bg)
		// Dim the background so the panel text stays readable.
		draw.DrawMask(dst, dst.Bounds(), image.NewUniform(color.NRGBA{0, 0, 0, 110}), image.Point{}, nil, image.Point{}, draw.Over)
	} else {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.NRGBA{24, 28, 44, 255}), image.Point{}, draw.Src)
	}

	panel := image.Rect(
		(cardWidth-panelWidth)/2,
		(cardHeight-panelHeight)/2,
		(cardWidth+panelWidth)/2,
		(cardHeight+panelHeight)/2,
	)
	mask := roundedRectMask(panelWidth, panelHeight, panelRadius)
	draw.DrawMask(dst, panel, image.NewUniform(color.NRGBA{0, 0, 0, 150}), image.Point{}, mask, image.Point{}, draw.Over)

	title, subtitle := cardCopy(req)

	titleFace, err := newFace(gobold.TTF, 56)
	if err != nil {
		return nil, err
	}
	subFace, err := newFace(goregular.TTF, 28)
	if err != nil {
		return nil, err
	}
	smallFace, err := newFace(goregular.TTF, 16)
	if err != nil {
		return nil, err
	}

	drawText(dst, titleFace, panel.Min.X+40, panel.Min.Y+90, title)
	drawText(dst, subFace, panel.Min.X+40, panel.Min.Y+160, subtitle)
	if label := strings.TrimSpace(req.SelectedLabel); label != "" {
		drawText(dst, subFace, panel.Min.X+40, panel.Min.Y+220, "You chose: "+label)
	}
	drawText(dst, smallFace, panel.Min.X+40, panel.Max.Y-30, "The stars remember your arrival")

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

func cardCopy(req CardRequest) (title, subtitle string) {
	tag := strings.TrimSpace(req.MemberTag)
	if tag == "" {
		tag = "traveler"
	}
	switch req.Page {
	case 2:
		return "One more step", "Almost there, " + tag + ". Confirm below to finish."
	default:
		return "Welcome aboard", "Welcome, " + tag + "! Tell us how you found us."
	}
}

func loadBackground(path string) image.Image {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return img
}

// coverScale scales src to fill dst completely, cropping overflow, like
// CSS background-size: cover.
func coverScale(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw <= 0 || sh <= 0 {
		return
	}

	dw, dh := dst.Bounds().Dx(), dst.Bounds().Dy()
	scale := float64(dw) / float64(sw)
	if s := float64(dh) / float64(sh); s > scale {
		scale = s
	}

	tw := int(float64(sw)*scale + 0.5)
	th := int(float64(sh)*scale + 0.5)
	offX := (tw - dw) / 2
	offY := (th - dh) / 2

	target := image.Rect(-offX, -offY, tw-offX, th-offY)
	xdraw.CatmullRom.Scale(dst, target, src, sb, xdraw.Src, nil)
}

func roundedRectMask(w, h, radius int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	r2 := radius * radius
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cx, cy := -1, -1
			if x < radius {
				cx = radius
			} else if x >= w-radius {
				cx = w - radius - 1
			}
			if y < radius {
				cy = radius
			} else if y >= h-radius {
				cy = h - radius - 1
			}
			if cx >= 0 && cy >= 0 {
				dx, dy := x-cx, y-cy
				if dx*dx+dy*dy > r2 {
					continue
				}
			}
			mask.SetAlpha(x, y, color.Alpha{A: 255})
		}
	}
	return mask
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build face: %w", err)
	}
	return face, nil
}

func drawText(dst draw.Image, face font.Face, x, y int, text string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
