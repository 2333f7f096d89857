package imagedecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/localscan/scanhost/pkg/imagedecode/tiff"
)

func newTIFFDecoder(data []byte) (Decoder, error) {
	return tiff.New(data)
}

// wholeImageDecoder adapts a fully decoded image.Image to the
// scanline-cursor Decoder interface: JPEG and PNG are never the
// format this project needs to stream incrementally (devices use them
// for small preview/status thumbnails, not page-by-page output), so a
// whole-image decode followed by row-at-a-time serving is sufficient.
type wholeImageDecoder struct {
	img  image.Image
	row  int
	w, h int
}

func wrapImage(img image.Image) *wholeImageDecoder {
	b := img.Bounds()
	return &wholeImageDecoder{img: img, w: b.Dx(), h: b.Dy()}
}

func (d *wholeImageDecoder) Width() int           { return d.w }
func (d *wholeImageDecoder) Height() int          { return d.h }
func (d *wholeImageDecoder) SamplesPerPixel() int { return 3 }

func (d *wholeImageDecoder) ReadLine(buf []byte) (int, error) {
	if d.row >= d.h {
		return 0, io.EOF
	}
	b := d.img.Bounds()
	y := b.Min.Y + d.row
	n := 0
	for x := b.Min.X; x < b.Max.X; x++ {
		r, g, bl, _ := d.img.At(x, y).RGBA()
		buf[n] = byte(r >> 8)
		buf[n+1] = byte(g >> 8)
		buf[n+2] = byte(bl >> 8)
		n += 3
	}
	d.row++
	return n, nil
}

func newJPEGDecoder(data []byte) (Decoder, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagedecode: jpeg: %w", err)
	}
	return wrapImage(img), nil
}

func newPNGDecoder(data []byte) (Decoder, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagedecode: png: %w", err)
	}
	return wrapImage(img), nil
}

// bmpDecoder is a hand-rolled reader for uncompressed 24-bit BMP, the
// one variant devices are seen to emit; the standard library ships no
// BMP decoder at all.
type bmpDecoder struct {
	data      []byte
	width     int
	height    int
	rowStride int
	dataOff   int
	topDown   bool
	row       int
}

func newBMPDecoder(data []byte) (Decoder, error) {
	if len(data) < 54 {
		return nil, fmt.Errorf("imagedecode: bmp: header too short")
	}
	dataOff := int(binary.LittleEndian.Uint32(data[10:14]))
	width := int(int32(binary.LittleEndian.Uint32(data[18:22])))
	heightRaw := int32(binary.LittleEndian.Uint32(data[22:26]))
	bpp := binary.LittleEndian.Uint16(data[28:30])
	if bpp != 24 {
		return nil, fmt.Errorf("imagedecode: bmp: only 24bpp supported, got %d", bpp)
	}

	height := int(heightRaw)
	topDown := false
	if heightRaw < 0 {
		height = -height
		topDown = true
	}

	rowStride := (width*3 + 3) &^ 3 // rows padded to a 4-byte boundary
	return &bmpDecoder{
		data: data, width: width, height: height,
		rowStride: rowStride, dataOff: dataOff, topDown: topDown,
	}, nil
}

func (d *bmpDecoder) Width() int           { return d.width }
func (d *bmpDecoder) Height() int          { return d.height }
func (d *bmpDecoder) SamplesPerPixel() int { return 3 }

func (d *bmpDecoder) ReadLine(buf []byte) (int, error) {
	if d.row >= d.height {
		return 0, io.EOF
	}

	fileRow := d.row
	if !d.topDown {
		fileRow = d.height - 1 - d.row
	}
	off := d.dataOff + fileRow*d.rowStride
	if off+d.width*3 > len(d.data) {
		return 0, fmt.Errorf("imagedecode: bmp: row %d out of range", d.row)
	}

	// BMP stores BGR; convert to RGB.
	src := d.data[off : off+d.width*3]
	n := 0
	for x := 0; x < d.width; x++ {
		buf[n] = src[x*3+2]
		buf[n+1] = src[x*3+1]
		buf[n+2] = src[x*3]
		n += 3
	}
	d.row++
	return n, nil
}
