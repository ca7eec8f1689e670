package plist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// Marshal encodes a value tree as a binary plist. Accepted types mirror
// the decoder's output set, plus Go conveniences (int, map[string]any).
func Marshal(root any) ([]byte, error) {
	e := &encoder{}
	if _, err := e.flatten(root); err != nil {
		return nil, err
	}

	refSize := sizedIntWidth(uint64(len(e.objects) - 1))

	var body bytes.Buffer
	body.WriteString("bplist00")
	offsets := make([]uint64, len(e.objects))
	for i, obj := range e.objects {
		offsets[i] = uint64(body.Len())
		if err := writeObject(&body, obj, refSize); err != nil {
			return nil, err
		}
	}

	tableOff := uint64(body.Len())
	offsetIntSize := sizedIntWidth(tableOff)
	for _, off := range offsets {
		writeSizedUint(&body, off, offsetIntSize)
	}

	trailer := make([]byte, trailerSize)
	trailer[6] = byte(offsetIntSize)
	trailer[7] = byte(refSize)
	binary.BigEndian.PutUint64(trailer[8:16], uint64(len(e.objects)))
	binary.BigEndian.PutUint64(trailer[16:24], 0)
	binary.BigEndian.PutUint64(trailer[24:32], tableOff)
	body.Write(trailer)

	return body.Bytes(), nil
}

// encObject is a flattened object: either a scalar value or a container
// whose children are object-table indices.
type encObject struct {
	value     any
	childRefs []int
	isDict    bool
}

type encoder struct {
	objects []encObject
}

// flatten appends the value and its descendants to the object table and
// returns the value's index. The root is always index 0.
func (e *encoder) flatten(v any) (int, error) {
	idx := len(e.objects)
	e.objects = append(e.objects, encObject{})

	switch tv := v.(type) {
	case nil, bool, int64, int, int32, uint64, float64, float32, string, []byte, time.Time, UID:
		e.objects[idx] = encObject{value: tv}
		return idx, nil
	case []any:
		refs := make([]int, 0, len(tv))
		for _, child := range tv {
			ref, err := e.flatten(child)
			if err != nil {
				return 0, err
			}
			refs = append(refs, ref)
		}
		e.objects[idx] = encObject{childRefs: refs}
		return idx, nil
	case *Dict:
		refs := make([]int, 0, 2*tv.Len())
		keys := tv.Keys()
		for _, key := range keys {
			ref, err := e.flatten(key)
			if err != nil {
				return 0, err
			}
			refs = append(refs, ref)
		}
		for _, key := range keys {
			child, _ := tv.Get(key)
			ref, err := e.flatten(child)
			if err != nil {
				return 0, err
			}
			refs = append(refs, ref)
		}
		e.objects[idx] = encObject{childRefs: refs, isDict: true}
		return idx, nil
	case map[string]any:
		dict := NewDict()
		keys := make([]string, 0, len(tv))
		for key := range tv {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			dict.Set(key, tv[key])
		}
		e.objects = e.objects[:idx]
		return e.flatten(dict)
	default:
		return 0, fmt.Errorf("plist: cannot encode value of type %T", v)
	}
}

func writeObject(buf *bytes.Buffer, obj encObject, refSize int) error {
	if obj.childRefs != nil || obj.isDict {
		count := len(obj.childRefs)
		marker := byte(0xa0)
		if obj.isDict {
			marker = 0xd0
			count /= 2
		}
		writeMarker(buf, marker, uint64(count))
		for _, ref := range obj.childRefs {
			writeSizedUint(buf, uint64(ref), refSize)
		}
		return nil
	}

	switch tv := obj.value.(type) {
	case nil:
		buf.WriteByte(0x00)
	case bool:
		if tv {
			buf.WriteByte(0x09)
		} else {
			buf.WriteByte(0x08)
		}
	case int:
		writeInt(buf, int64(tv))
	case int32:
		writeInt(buf, int64(tv))
	case int64:
		writeInt(buf, tv)
	case uint64:
		if tv > math.MaxInt64 {
			return fmt.Errorf("plist: integer %d overflows signed encoding", tv)
		}
		writeInt(buf, int64(tv))
	case float32:
		buf.WriteByte(0x22)
		var raw [4]byte
		binary.BigEndian.PutUint32(raw[:], math.Float32bits(tv))
		buf.Write(raw[:])
	case float64:
		buf.WriteByte(0x23)
		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], math.Float64bits(tv))
		buf.Write(raw[:])
	case time.Time:
		buf.WriteByte(0x33)
		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], math.Float64bits(appleSeconds(tv)))
		buf.Write(raw[:])
	case string:
		writeString(buf, tv)
	case []byte:
		writeMarker(buf, 0x40, uint64(len(tv)))
		buf.Write(tv)
	case UID:
		width := sizedIntWidth(uint64(tv))
		buf.WriteByte(0x80 | byte(width-1))
		writeSizedUint(buf, uint64(tv), width)
	default:
		return fmt.Errorf("plist: cannot encode value of type %T", obj.value)
	}
	return nil
}

func writeInt(buf *bytes.Buffer, v int64) {
	switch {
	case v < 0:
		buf.WriteByte(0x13)
		writeSizedUint(buf, uint64(v), 8)
	case v <= math.MaxUint8:
		buf.WriteByte(0x10)
		writeSizedUint(buf, uint64(v), 1)
	case v <= math.MaxUint16:
		buf.WriteByte(0x11)
		writeSizedUint(buf, uint64(v), 2)
	case v <= math.MaxUint32:
		buf.WriteByte(0x12)
		writeSizedUint(buf, uint64(v), 4)
	default:
		buf.WriteByte(0x13)
		writeSizedUint(buf, uint64(v), 8)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		writeMarker(buf, 0x50, uint64(len(s)))
		buf.WriteString(s)
		return
	}
	units := utf16.Encode([]rune(s))
	writeMarker(buf, 0x60, uint64(len(units)))
	for _, unit := range units {
		var raw [2]byte
		binary.BigEndian.PutUint16(raw[:], unit)
		buf.Write(raw[:])
	}
}

// writeMarker emits a container/data marker with its count, using the
// extended form when the count exceeds the nibble.
func writeMarker(buf *bytes.Buffer, marker byte, count uint64) {
	if count < 0x0f {
		buf.WriteByte(marker | byte(count))
		return
	}
	buf.WriteByte(marker | 0x0f)
	switch width := sizedIntWidth(count); width {
	case 1:
		buf.WriteByte(0x10)
		writeSizedUint(buf, count, 1)
	case 2:
		buf.WriteByte(0x11)
		writeSizedUint(buf, count, 2)
	case 4:
		buf.WriteByte(0x12)
		writeSizedUint(buf, count, 4)
	default:
		buf.WriteByte(0x13)
		writeSizedUint(buf, count, 8)
	}
}

// sizedIntWidth picks the narrowest power-of-two byte width holding v.
func sizedIntWidth(v uint64) int {
	switch {
	case v <= math.MaxUint8:
		return 1
	case v <= math.MaxUint16:
		return 2
	case v <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

func writeSizedUint(buf *bytes.Buffer, v uint64, width int) {
	for shift := (width - 1) * 8; shift >= 0; shift -= 8 {
		buf.WriteByte(byte(v >> shift))
	}
}
