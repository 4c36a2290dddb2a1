package orientation

import (
	"image"
	"image/draw"
)

// IsPortrait reports whether the image is at least as tall as it is wide.
func IsPortrait(img image.Image) bool {
	b := img.Bounds()
	return b.Dy() >= b.Dx()
}

// RotateClockwise returns img turned clockwise by deg, which must be a
// multiple of 90. The result's bounds start at the origin. RGBA and Gray
// sources keep their pixel format; anything else comes back as RGBA.
func RotateClockwise(img image.Image, deg int) image.Image {
	deg = Normalize(deg)
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	dst := rotatedBounds(w, h, deg)

	switch m := img.(type) {
	case *image.RGBA:
		out := image.NewRGBA(dst)
		rotatePix(m.Pix[m.PixOffset(src.Min.X, src.Min.Y):], m.Stride, out.Pix, out.Stride, w, h, 4, deg)
		return out
	case *image.Gray:
		out := image.NewGray(dst)
		rotatePix(m.Pix[m.PixOffset(src.Min.X, src.Min.Y):], m.Stride, out.Pix, out.Stride, w, h, 1, deg)
		return out
	}

	out := image.NewRGBA(dst)
	if deg == 0 {
		draw.Draw(out, out.Bounds(), img, src.Min, draw.Src)
		return out
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := rotatedPoint(x, y, w, h, deg)
			out.Set(dx, dy, img.At(src.Min.X+x, src.Min.Y+y))
		}
	}
	return out
}

func rotatedBounds(w, h, deg int) image.Rectangle {
	if deg == 90 || deg == 270 {
		return image.Rect(0, 0, h, w)
	}
	return image.Rect(0, 0, w, h)
}

// rotatedPoint maps (x, y) of a w×h image to its position after a clockwise
// turn by deg.
func rotatedPoint(x, y, w, h, deg int) (int, int) {
	switch deg {
	case 90:
		return h - 1 - y, x
	case 180:
		return w - 1 - x, h - 1 - y
	case 270:
		return y, w - 1 - x
	}
	return x, y
}

// rotatePix copies bpp-byte pixels of a w×h raster starting at src[0] into
// dst, turned clockwise by deg.
func rotatePix(src []byte, srcStride int, dst []byte, dstStride, w, h, bpp, deg int) {
	for y := 0; y < h; y++ {
		row := src[y*srcStride:]
		if deg == 0 {
			copy(dst[y*dstStride:y*dstStride+w*bpp], row[:w*bpp])
			continue
		}
		for x := 0; x < w; x++ {
			dx, dy := rotatedPoint(x, y, w, h, deg)
			d := dy*dstStride + dx*bpp
			copy(dst[d:d+bpp], row[x*bpp:x*bpp+bpp])
		}
	}
}
