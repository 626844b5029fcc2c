package comparator

import (
	"image"
	"image/color"
)

// Diff returns an opaque image whose channels hold the absolute difference
// between a and b. The result covers the overlapping size of both images and
// starts at the origin.
func Diff(a, b image.Image) *image.NRGBA {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := min(ab.Dx(), bb.Dx()), min(ab.Dy(), bb.Dy())

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ca := color.NRGBAModel.Convert(a.At(ab.Min.X+x, ab.Min.Y+y)).(color.NRGBA)
			cb := color.NRGBAModel.Convert(b.At(bb.Min.X+x, bb.Min.Y+y)).(color.NRGBA)
			out.SetNRGBA(x, y, color.NRGBA{
				R: absDiff(ca.R, cb.R),
				G: absDiff(ca.G, cb.G),
				B: absDiff(ca.B, cb.B),
				A: 255,
			})
		}
	}
	return out
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
