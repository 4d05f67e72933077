package ocr

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// defaultCropRatio is the fraction of width/height kept by the centered crop.
// Promo screenshots place the code in the middle of the frame.
const defaultCropRatio = 0.6

// Preprocess prepares a screenshot for text recognition: centered crop to
// cropRatio of each dimension, grayscale, contrast stretch, sharpen. The
// pipeline is fixed; only the crop ratio varies.
func Preprocess(img image.Image, cropRatio float64) *image.NRGBA {
	if cropRatio <= 0 || cropRatio > 1 {
		cropRatio = defaultCropRatio
	}
	b := img.Bounds()
	cropW := int(math.Round(float64(b.Dx()) * cropRatio))
	cropH := int(math.Round(float64(b.Dy()) * cropRatio))
	out := imaging.CropCenter(img, cropW, cropH)
	out = imaging.Grayscale(out)
	out = stretchContrast(out)
	return imaging.Sharpen(out, 0.7)
}

// stretchContrast linearly rescales pixel intensity so the darkest pixel
// maps to 0 and the brightest to 255. Input is expected to be grayscale.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	minV, maxV := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.NRGBAAt(x, y).R
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}
	if maxV <= minV {
		return img
	}
	scale := 255.0 / float64(maxV-minV)
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := img.NRGBAAt(x, y)
			v := uint8(math.Round(float64(p.R-minV) * scale))
			out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: p.A})
		}
	}
	return out
}
