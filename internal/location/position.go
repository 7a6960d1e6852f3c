package location

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultSentinel is the trailing coordinate value the feed uses for
// "vehicle arrived / no longer tracked".
const DefaultSentinel = -1

// Position is one normalized record from the locations feed.
type Position struct {
	Key string `json:"key"`
	// Coordinate is lon, lat, marker.
	Coordinate [3]float64 `json:"coordinate"`
}

func (p Position) Lon() float64    { return p.Coordinate[0] }
func (p Position) Lat() float64    { return p.Coordinate[1] }
func (p Position) Marker() float64 { return p.Coordinate[2] }

// IsSentinel reports whether the record signals absence rather than a position.
func (p Position) IsSentinel(sentinel float64) bool {
	return p.Coordinate[2] == sentinel
}

type wirePosition struct {
	Key        string    `json:"key"`
	Coordinate []float64 `json:"coordinate"`
}

// decodeJSON accepts either a single record object or a list of records.
// Records that do not decode or whose coordinate is not [lon, lat, marker]
// are dropped and counted.
func decodeJSON(body []byte, _ float64) ([]Position, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, 0, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if !json.Valid(trimmed) {
		return nil, 0, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	var raws []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case '{':
		raws = []json.RawMessage{trimmed}
	default:
		return nil, 0, fmt.Errorf("%w: unexpected body %q", ErrMalformed, trimmed[0])
	}

	out := make([]Position, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		var w wirePosition
		if err := json.Unmarshal(raw, &w); err != nil || len(w.Coordinate) != 3 {
			dropped++
			continue
		}
		out = append(out, Position{
			Key:        w.Key,
			Coordinate: [3]float64{w.Coordinate[0], w.Coordinate[1], w.Coordinate[2]},
		})
	}
	return out, dropped, nil
}
