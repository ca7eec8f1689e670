package plist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
)

var (
	// ErrInvalidHeader indicates the input is not a structurally valid
	// binary plist (bad magic, impossible trailer, or broken references).
	ErrInvalidHeader = errors.New("plist: invalid header")
	// ErrTruncated indicates the input ends before the structure it
	// describes is complete.
	ErrTruncated = errors.New("plist: truncated input")
)

// UnsupportedTypeError reports an object marker the decoder does not
// recognize. The offending payload is rejected rather than guessed at.
type UnsupportedTypeError struct {
	Marker byte
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("plist: unsupported object marker 0x%02x", e.Marker)
}

const (
	headerSize  = 8
	trailerSize = 32
	magic       = "bplist0"
)

type decoder struct {
	buf      []byte
	offsets  []uint64
	refSize  int
	tableOff uint64
	inflight []bool
}

// Decode parses a complete binary plist and returns its root object.
func Decode(data []byte) (any, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if string(data[:len(magic)]) != magic {
		return nil, ErrInvalidHeader
	}
	if len(data) < headerSize+trailerSize+1 {
		return nil, ErrTruncated
	}

	trailer := data[len(data)-trailerSize:]
	offsetIntSize := int(trailer[6])
	refSize := int(trailer[7])
	numObjects := binary.BigEndian.Uint64(trailer[8:16])
	topObject := binary.BigEndian.Uint64(trailer[16:24])
	tableOff := binary.BigEndian.Uint64(trailer[24:32])

	if offsetIntSize < 1 || offsetIntSize > 8 || refSize < 1 || refSize > 8 {
		return nil, fmt.Errorf("%w: offset int size %d, ref size %d", ErrInvalidHeader, offsetIntSize, refSize)
	}
	if numObjects == 0 {
		return nil, fmt.Errorf("%w: zero objects", ErrInvalidHeader)
	}
	if topObject >= numObjects {
		return nil, fmt.Errorf("%w: top object %d out of range", ErrInvalidHeader, topObject)
	}
	bodyEnd := uint64(len(data) - trailerSize)
	if tableOff < headerSize || tableOff > bodyEnd {
		return nil, fmt.Errorf("%w: offset table at %d", ErrTruncated, tableOff)
	}
	if numObjects > (bodyEnd-tableOff)/uint64(offsetIntSize) {
		return nil, fmt.Errorf("%w: offset table overruns trailer", ErrTruncated)
	}

	d := &decoder{
		buf:      data[:bodyEnd],
		refSize:  refSize,
		tableOff: tableOff,
		offsets:  make([]uint64, numObjects),
		inflight: make([]bool, numObjects),
	}
	for i := range d.offsets {
		start := tableOff + uint64(i*offsetIntSize)
		off := readSizedUint(data[start : start+uint64(offsetIntSize)])
		if off < headerSize || off >= tableOff {
			return nil, fmt.Errorf("%w: object %d offset %d out of range", ErrInvalidHeader, i, off)
		}
		d.offsets[i] = off
	}

	return d.object(topObject)
}

// object resolves the object at the given table index, guarding against
// reference cycles.
func (d *decoder) object(index uint64) (any, error) {
	if index >= uint64(len(d.offsets)) {
		return nil, fmt.Errorf("%w: object reference %d out of range", ErrInvalidHeader, index)
	}
	if d.inflight[index] {
		return nil, fmt.Errorf("%w: circular object reference at %d", ErrInvalidHeader, index)
	}
	d.inflight[index] = true
	defer func() { d.inflight[index] = false }()

	off := d.offsets[index]
	marker := d.buf[off]
	pos := off + 1

	switch marker >> 4 {
	case 0x0:
		switch marker {
		case 0x00:
			return nil, nil
		case 0x08:
			return false, nil
		case 0x09:
			return true, nil
		default:
			return nil, &UnsupportedTypeError{Marker: marker}
		}
	case 0x1:
		return d.integer(marker, pos)
	case 0x2:
		return d.real(marker, pos)
	case 0x3:
		if marker != 0x33 {
			return nil, &UnsupportedTypeError{Marker: marker}
		}
		raw, err := d.take(pos, 8)
		if err != nil {
			return nil, err
		}
		return appleTime(math.Float64frombits(binary.BigEndian.Uint64(raw))), nil
	case 0x4:
		count, pos, err := d.count(marker, pos)
		if err != nil {
			return nil, err
		}
		raw, err := d.take(pos, count)
		if err != nil {
			return nil, err
		}
		out := make([]byte, count)
		copy(out, raw)
		return out, nil
	case 0x5:
		count, pos, err := d.count(marker, pos)
		if err != nil {
			return nil, err
		}
		raw, err := d.take(pos, count)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	case 0x6:
		count, pos, err := d.count(marker, pos)
		if err != nil {
			return nil, err
		}
		raw, err := d.take(pos, count*2)
		if err != nil {
			return nil, err
		}
		units := make([]uint16, count)
		for i := range units {
			units[i] = binary.BigEndian.Uint16(raw[2*i:])
		}
		return string(utf16.Decode(units)), nil
	case 0x8:
		size := uint64(marker&0x0f) + 1
		if size > 8 {
			return nil, &UnsupportedTypeError{Marker: marker}
		}
		raw, err := d.take(pos, size)
		if err != nil {
			return nil, err
		}
		return UID(readSizedUint(raw)), nil
	case 0xa, 0xc:
		count, pos, err := d.count(marker, pos)
		if err != nil {
			return nil, err
		}
		return d.array(pos, count)
	case 0xd:
		count, pos, err := d.count(marker, pos)
		if err != nil {
			return nil, err
		}
		return d.dict(pos, count)
	default:
		return nil, &UnsupportedTypeError{Marker: marker}
	}
}

func (d *decoder) integer(marker byte, pos uint64) (int64, error) {
	exp := marker & 0x0f
	if exp > 4 {
		return 0, &UnsupportedTypeError{Marker: marker}
	}
	size := uint64(1) << exp
	raw, err := d.take(pos, size)
	if err != nil {
		return 0, err
	}
	if size == 16 {
		// Only written for values beyond int64 range; reject unless the
		// high half carries no information.
		for _, b := range raw[:8] {
			if b != 0 {
				return 0, &UnsupportedTypeError{Marker: marker}
			}
		}
		v := binary.BigEndian.Uint64(raw[8:])
		if v > math.MaxInt64 {
			return 0, &UnsupportedTypeError{Marker: marker}
		}
		return int64(v), nil
	}
	// 8-byte integers are the only signed encoding; narrower widths are
	// unsigned and stay non-negative through the conversion.
	return int64(readSizedUint(raw)), nil
}

func (d *decoder) real(marker byte, pos uint64) (float64, error) {
	switch marker & 0x0f {
	case 2:
		raw, err := d.take(pos, 4)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case 3:
		raw, err := d.take(pos, 8)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	default:
		return 0, &UnsupportedTypeError{Marker: marker}
	}
}

func (d *decoder) array(pos, count uint64) ([]any, error) {
	refs, err := d.refs(pos, count)
	if err != nil {
		return nil, err
	}
	out := make([]any, count)
	for i, ref := range refs {
		v, err := d.object(ref)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *decoder) dict(pos, count uint64) (*Dict, error) {
	keyRefs, err := d.refs(pos, count)
	if err != nil {
		return nil, err
	}
	valRefs, err := d.refs(pos+count*uint64(d.refSize), count)
	if err != nil {
		return nil, err
	}
	out := NewDict()
	for i := uint64(0); i < count; i++ {
		kv, err := d.object(keyRefs[i])
		if err != nil {
			return nil, err
		}
		key, ok := kv.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string dictionary key", ErrInvalidHeader)
		}
		v, err := d.object(valRefs[i])
		if err != nil {
			return nil, err
		}
		out.Set(key, v)
	}
	return out, nil
}

func (d *decoder) refs(pos, count uint64) ([]uint64, error) {
	size := uint64(d.refSize)
	if count > d.tableOff/size {
		return nil, fmt.Errorf("%w: %d references exceed input", ErrTruncated, count)
	}
	raw, err := d.take(pos, count*size)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		out[i] = readSizedUint(raw[uint64(i)*size : uint64(i+1)*size])
	}
	return out, nil
}

// count reads the object length from the marker's low nibble, following
// the extended-length form when the nibble is 0xF.
func (d *decoder) count(marker byte, pos uint64) (uint64, uint64, error) {
	nibble := uint64(marker & 0x0f)
	if nibble != 0x0f {
		return nibble, pos, nil
	}
	raw, err := d.take(pos, 1)
	if err != nil {
		return 0, 0, err
	}
	intMarker := raw[0]
	if intMarker>>4 != 0x1 {
		return 0, 0, fmt.Errorf("%w: extended length marker 0x%02x", ErrInvalidHeader, intMarker)
	}
	exp := intMarker & 0x0f
	if exp > 3 {
		return 0, 0, &UnsupportedTypeError{Marker: intMarker}
	}
	size := uint64(1) << exp
	raw, err = d.take(pos+1, size)
	if err != nil {
		return 0, 0, err
	}
	c := readSizedUint(raw)
	// Every element occupies at least one byte, so a count beyond the
	// object region is unsatisfiable no matter the element width. This
	// also keeps later count*width products from wrapping around.
	if c > d.tableOff {
		return 0, 0, fmt.Errorf("%w: declared length %d exceeds input", ErrTruncated, c)
	}
	return c, pos + 1 + size, nil
}

// take bounds-checks a read of n bytes starting at pos within the object
// region.
func (d *decoder) take(pos, n uint64) ([]byte, error) {
	if n > d.tableOff || pos > d.tableOff-n {
		return nil, fmt.Errorf("%w: object data overruns offset table", ErrTruncated)
	}
	return d.buf[pos : pos+n], nil
}

func readSizedUint(raw []byte) uint64 {
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return v
}
