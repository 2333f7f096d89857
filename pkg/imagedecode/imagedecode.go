// Package imagedecode sniffs and decodes the raster image formats
// eSCL/WSD devices return for a scanned page.
package imagedecode

import "bytes"

// Format identifies an image container format by its magic bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatTIFF
	FormatBMP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatTIFF:
		return "tiff"
	case FormatBMP:
		return "bmp"
	default:
		return "unknown"
	}
}

var (
	jpegMagic     = []byte{0xFF, 0xD8, 0xFF}
	pngMagic      = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	tiffMagicLE   = []byte{'I', 'I', 42, 0}
	tiffMagicBE   = []byte{'M', 'M', 0, 42}
	bmpMagic      = []byte{'B', 'M'}
)

// DetectFormat identifies the format of an image buffer by its magic
// bytes. It does not validate the rest of the container.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case bytes.HasPrefix(data, tiffMagicLE), bytes.HasPrefix(data, tiffMagicBE):
		return FormatTIFF
	case bytes.HasPrefix(data, bmpMagic):
		return FormatBMP
	default:
		return FormatUnknown
	}
}

// Decoder exposes a scanline cursor over a decoded image, the shape
// the scan job state machine reads pages through regardless of
// underlying format.
type Decoder interface {
	Width() int
	Height() int
	// SamplesPerPixel is 1 for gray/mono, 3 for RGB.
	SamplesPerPixel() int
	// ReadLine reads one decoded scanline (Width*SamplesPerPixel
	// bytes) into buf, returning io.EOF once Height lines have been
	// read.
	ReadLine(buf []byte) (int, error)
}

// Open sniffs data's format and returns a Decoder for it.
func Open(data []byte) (Decoder, error) {
	switch DetectFormat(data) {
	case FormatTIFF:
		return newTIFFDecoder(data)
	case FormatJPEG:
		return newJPEGDecoder(data)
	case FormatPNG:
		return newPNGDecoder(data)
	case FormatBMP:
		return newBMPDecoder(data)
	default:
		return nil, errUnsupportedFormat
	}
}
