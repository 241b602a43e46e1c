package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func decodeCard(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode card: %v", err)
	}
	return img
}

func TestRenderCard_NoBackground(t *testing.T) {
	data, err := RenderCard(CardRequest{Page: 1, MemberTag: "@alice"}, CardOptions{})
	if err != nil {
		t.Fatalf("RenderCard error: %v", err)
	}

	img := decodeCard(t, data)
	b := img.Bounds()
	if b.Dx() != cardWidth || b.Dy() != cardHeight {
		t.Fatalf("unexpected dimensions: %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderCard_WithBackground(t *testing.T) {
	bgPath := filepath.Join(t.TempDir(), "bg.png")
	bg := image.NewRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			bg.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	f, err := os.Create(bgPath)
	if err != nil {
		t.Fatalf("create bg: %v", err)
	}
	if err := png.Encode(f, bg); err != nil {
		t.Fatalf("encode bg: %v", err)
	}
	_ = f.Close()

	data, err := RenderCard(CardRequest{Page: 2, MemberTag: "@bob", SelectedLabel: "Friend Invite"}, CardOptions{BackgroundPath: bgPath})
	if err != nil {
		t.Fatalf("RenderCard error: %v", err)
	}
	img := decodeCard(t, data)

	// A corner pixel should carry the (dimmed) red background, not the
	// flat fallback fill.
	r, _, b, _ := img.At(2, 2).RGBA()
	if r <= b {
		t.Fatalf("expected reddish background corner, got r=%d b=%d", r, b)
	}
}

func TestRenderCard_MissingBackgroundDegrades(t *testing.T) {
	data, err := RenderCard(CardRequest{Page: 1, MemberTag: "@alice"}, CardOptions{BackgroundPath: "/no/such/file.png"})
	if err != nil {
		t.Fatalf("RenderCard should degrade, got error: %v", err)
	}
	decodeCard(t, data)
}

func TestRoundedRectMask_Corners(t *testing.T) {
	mask := roundedRectMask(100, 60, 20)
	if a := mask.AlphaAt(0, 0).A; a != 0 {
		t.Fatalf("corner should be transparent, alpha=%d", a)
	}
	if a := mask.AlphaAt(50, 30).A; a != 255 {
		t.Fatalf("center should be opaque, alpha=%d", a)
	}
	if a := mask.AlphaAt(50, 0).A; a != 255 {
		t.Fatalf("top edge midpoint should be opaque, alpha=%d", a)
	}
}
