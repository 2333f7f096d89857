// Package tiff decodes the baseline TIFF images eSCL/WSD devices
// return for scanned pages, exposing a scanline cursor rather than a
// single decoded image.Image: the scan job state machine streams
// pages through a fixed-size read buffer, and the standard library's
// image/tiff has no API for that, only whole-image decode (see
// DESIGN.md).
package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
)

// tag IDs used by the baseline decoder.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
)

// Decoder implements imagedecode.Decoder for uncompressed baseline
// TIFF: the raster format most eSCL/WSD devices actually emit.
type Decoder struct {
	data    []byte
	bo      binary.ByteOrder
	width   int
	height  int
	samples int
	bits    int

	strips      []stripInfo
	rowsPerStrip int
	row          int
}

type stripInfo struct {
	offset, length uint32
}

// New parses the IFD of a baseline TIFF buffer and returns a Decoder
// ready to serve ReadLine calls.
func New(data []byte) (*Decoder, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("tiff: buffer too short for header")
	}

	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("tiff: bad byte-order marker")
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("tiff: bad magic number")
	}

	ifdOffset := bo.Uint32(data[4:8])
	d := &Decoder{data: data, bo: bo, samples: 1, bits: 8}
	if err := d.parseIFD(ifdOffset); err != nil {
		return nil, err
	}
	if d.width == 0 || d.height == 0 {
		return nil, fmt.Errorf("tiff: missing width/height tag")
	}
	if len(d.strips) == 0 {
		return nil, fmt.Errorf("tiff: no strip data found")
	}
	if d.rowsPerStrip == 0 {
		d.rowsPerStrip = d.height
	}
	return d, nil
}

func (d *Decoder) parseIFD(offset uint32) error {
	if int(offset)+2 > len(d.data) {
		return fmt.Errorf("tiff: IFD offset out of range")
	}
	count := int(d.bo.Uint16(d.data[offset : offset+2]))
	entryStart := offset + 2

	var stripOffsets, stripCounts []uint32

	for i := 0; i < count; i++ {
		base := int(entryStart) + i*12
		if base+12 > len(d.data) {
			return fmt.Errorf("tiff: IFD entry out of range")
		}
		tag := d.bo.Uint16(d.data[base : base+2])
		typ := d.bo.Uint16(d.data[base+2 : base+4])
		n := d.bo.Uint32(d.data[base+4 : base+8])
		valOff := base + 8

		readUint := func(idx int) (uint32, error) {
			switch typ {
			case 3: // SHORT
				off := valOff + idx*2
				if off+2 > len(d.data) {
					return 0, fmt.Errorf("tiff: value out of range")
				}
				return uint32(d.bo.Uint16(d.data[off : off+2])), nil
			case 4: // LONG
				ptr := valOff
				if n > 1 {
					ind := d.bo.Uint32(d.data[valOff : valOff+4])
					ptr = int(ind) + idx*4
				} else {
					ptr = valOff + idx*4
				}
				if ptr+4 > len(d.data) {
					return 0, fmt.Errorf("tiff: value out of range")
				}
				return d.bo.Uint32(d.data[ptr : ptr+4]), nil
			default:
				return 0, fmt.Errorf("tiff: unsupported tag value type %d", typ)
			}
		}

		switch tag {
		case tagImageWidth:
			v, err := readUint(0)
			if err != nil {
				return err
			}
			d.width = int(v)
		case tagImageLength:
			v, err := readUint(0)
			if err != nil {
				return err
			}
			d.height = int(v)
		case tagBitsPerSample:
			v, err := readUint(0)
			if err != nil {
				return err
			}
			d.bits = int(v)
		case tagSamplesPerPixel:
			v, err := readUint(0)
			if err != nil {
				return err
			}
			d.samples = int(v)
		case tagRowsPerStrip:
			v, err := readUint(0)
			if err != nil {
				return err
			}
			d.rowsPerStrip = int(v)
		case tagCompression:
			v, err := readUint(0)
			if err != nil {
				return err
			}
			if v != 1 {
				return fmt.Errorf("tiff: only uncompressed (compression=1) supported, got %d", v)
			}
		case tagStripOffsets:
			stripOffsets = make([]uint32, n)
			for j := range stripOffsets {
				v, err := readUint(j)
				if err != nil {
					return err
				}
				stripOffsets[j] = v
			}
		case tagStripByteCounts:
			stripCounts = make([]uint32, n)
			for j := range stripCounts {
				v, err := readUint(j)
				if err != nil {
					return err
				}
				stripCounts[j] = v
			}
		}
	}

	if len(stripOffsets) != len(stripCounts) {
		return fmt.Errorf("tiff: strip offset/count mismatch")
	}
	for i := range stripOffsets {
		d.strips = append(d.strips, stripInfo{offset: stripOffsets[i], length: stripCounts[i]})
	}
	return nil
}

func (d *Decoder) Width() int           { return d.width }
func (d *Decoder) Height() int          { return d.height }
func (d *Decoder) SamplesPerPixel() int { return d.samples }

// ReadLine copies the next decoded scanline into buf, which must be
// at least Width()*SamplesPerPixel() bytes. It returns io.EOF once
// Height() lines have been served.
func (d *Decoder) ReadLine(buf []byte) (int, error) {
	if d.row >= d.height {
		return 0, io.EOF
	}

	stripIdx := d.row / d.rowsPerStrip
	rowInStrip := d.row % d.rowsPerStrip
	if stripIdx >= len(d.strips) {
		return 0, fmt.Errorf("tiff: row %d has no backing strip", d.row)
	}
	strip := d.strips[stripIdx]

	lineLen := d.width * d.samples
	lineOffset := int(strip.offset) + rowInStrip*lineLen
	if lineOffset+lineLen > len(d.data) {
		return 0, fmt.Errorf("tiff: strip data out of range at row %d", d.row)
	}

	n := copy(buf, d.data[lineOffset:lineOffset+lineLen])
	d.row++
	return n, nil
}
