package pixel

import "image"

// FlipHorizontal mirrors img around its vertical axis in place. The sensor
// sees the scene mirrored, so displays usually flip it back.
func FlipHorizontal(img *image.RGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for l, r := 0, (w-1)*4; l < r; l, r = l+4, r-4 {
			for k := 0; k < 4; k++ {
				row[l+k], row[r+k] = row[r+k], row[l+k]
			}
		}
	}
}

// FlipVertical mirrors img around its horizontal axis in place.
func FlipVertical(img *image.RGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	tmp := make([]uint8, w*4)
	for top, bottom := 0, h-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := img.Pix[top*img.Stride : top*img.Stride+w*4]
		b := img.Pix[bottom*img.Stride : bottom*img.Stride+w*4]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
