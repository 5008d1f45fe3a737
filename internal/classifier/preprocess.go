// Package classifier runs the exported cloud image model with ONNX Runtime.
package classifier

import (
	"image"

	"golang.org/x/image/draw"
)

// DefaultInputSize is the square edge the image model was trained on.
const DefaultInputSize = 224

// fitSquare scales img to cover a size x size square and crops the centre,
// keeping the aspect ratio.
func fitSquare(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	src := b
	if w > h {
		off := (w - h) / 2
		src = image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	} else if h > w {
		off := (h - w) / 2
		src = image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// fillInput writes img into dst as NHWC RGB scaled to [-1, 1].
// dst must hold size*size*3 values.
func fillInput(dst []float32, img image.Image, size int) {
	sq := fitSquare(img, size)
	i := 0
	for y := 0; y < size; y++ {
		row := sq.Pix[y*sq.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4:]
			dst[i] = float32(px[0])/127.5 - 1
			dst[i+1] = float32(px[1])/127.5 - 1
			dst[i+2] = float32(px[2])/127.5 - 1
			i += 3
		}
	}
}
