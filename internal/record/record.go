package record

import (
	"encoding/json"
	"fmt"
	"time"

	"tattle/internal/plist"
)

// Record is a decoded notification row: the monotonic row identifier the
// store assigned plus the payload dictionary exactly as decoded.
type Record struct {
	RowID   int64
	Payload *plist.Dict
}

// Summary is the well-known subset of payload fields the macOS
// notification center writes for user-facing notifications. Fields absent
// from the payload are left at their zero values.
type Summary struct {
	BundleID string
	Title    string
	Subtitle string
	Body     string
	Date     time.Time
}

// appleEpochUnix anchors payload "date" reals, which count seconds from
// 2001-01-01T00:00:00Z.
const appleEpochUnix int64 = 978307200

// FromPayload decodes a raw payload blob into a Record. The root object
// must be a dictionary; anything else is reported as a decode failure.
func FromPayload(rowID int64, data []byte) (*Record, error) {
	decoded, err := plist.Decode(data)
	if err != nil {
		return nil, err
	}
	payload, ok := decoded.(*plist.Dict)
	if !ok {
		return nil, fmt.Errorf("payload root is %T, expected dictionary", decoded)
	}
	return &Record{RowID: rowID, Payload: payload}, nil
}

// Summary extracts the conventional notification fields: "app" and "date"
// from the root, title/subtitle/body from the nested "req" dictionary.
func (r *Record) Summary() Summary {
	var s Summary
	if r == nil || r.Payload == nil {
		return s
	}
	if app, ok := r.Payload.String("app"); ok {
		s.BundleID = app
	}
	if v, ok := r.Payload.Get("date"); ok {
		switch date := v.(type) {
		case float64:
			sec := int64(date)
			frac := date - float64(sec)
			s.Date = time.Unix(appleEpochUnix+sec, int64(frac*1e9)).UTC()
		case int64:
			s.Date = time.Unix(appleEpochUnix+date, 0).UTC()
		case time.Time:
			s.Date = date
		}
	}
	if req, ok := r.Payload.Dict("req"); ok {
		if title, ok := req.String("titl"); ok {
			s.Title = title
		}
		if subtitle, ok := req.String("subt"); ok {
			s.Subtitle = subtitle
		}
		if body, ok := req.String("body"); ok {
			s.Body = body
		}
	}
	return s
}

// wireRecord fixes the JSON field layout for sinks: summary fields first,
// then the full payload for consumers that need app-specific keys.
type wireRecord struct {
	RowID    int64       `json:"row_id"`
	App      string      `json:"app,omitempty"`
	Title    string      `json:"title,omitempty"`
	Subtitle string      `json:"subtitle,omitempty"`
	Body     string      `json:"body,omitempty"`
	Date     *time.Time  `json:"date,omitempty"`
	Payload  *plist.Dict `json:"payload"`
}

// MarshalJSON renders the record as a single self-contained JSON object.
func (r *Record) MarshalJSON() ([]byte, error) {
	s := r.Summary()
	wire := wireRecord{
		RowID:    r.RowID,
		App:      s.BundleID,
		Title:    s.Title,
		Subtitle: s.Subtitle,
		Body:     s.Body,
		Payload:  r.Payload,
	}
	if !s.Date.IsZero() {
		wire.Date = &s.Date
	}
	return json.Marshal(wire)
}
