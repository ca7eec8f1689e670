package plist

import (
	"encoding/json"
	"fmt"
	"time"
)

// appleEpoch is the reference date for plist timestamps: seconds relative
// to 2001-01-01T00:00:00Z.
const appleEpochUnix int64 = 978307200

// UID is a CoreFoundation keyed-archiver object reference. It is preserved
// as a distinct type so consumers can tell it apart from plain integers.
type UID uint64

// MarshalJSON renders the UID with an explicit wrapper so JSON consumers
// never confuse it with an ordinary number.
func (u UID) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UID uint64 `json:"$uid"`
	}{uint64(u)})
}

// Dict is a plist dictionary that remembers the key order it was built in.
type Dict struct {
	keys   []string
	values map[string]any
}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{values: make(map[string]any)}
}

// Set stores a value under key, appending the key on first use.
func (d *Dict) Set(key string, value any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (any, bool) {
	if d == nil || d.values == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// String returns the value under key when it is a string.
func (d *Dict) String(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Dict returns the value under key when it is a nested dictionary.
func (d *Dict) Dict(key string) (*Dict, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	nested, ok := v.(*Dict)
	return nested, ok
}

// Len reports the number of keys.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// MarshalJSON emits the dictionary as a JSON object preserving key order.
func (d *Dict) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	buf := make([]byte, 0, 16+32*len(d.keys))
	buf = append(buf, '{')
	for i, key := range d.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		vb, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshal value for %q: %w", key, err)
		}
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func appleTime(seconds float64) time.Time {
	sec := int64(seconds)
	frac := seconds - float64(sec)
	return time.Unix(appleEpochUnix+sec, int64(frac*1e9)).UTC()
}

func appleSeconds(t time.Time) float64 {
	return float64(t.Unix()-appleEpochUnix) + float64(t.Nanosecond())/1e9
}
