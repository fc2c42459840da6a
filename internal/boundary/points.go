// Package boundary normalizes the loosely shaped JSON payloads accepted at
// the edge of the service into the canonical model types.
package boundary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
)

var (
	ErrNoCoordinates = errors.New("no boundary coordinates found in payload")
	ErrMalformed     = errors.New("malformed payload")
)

var (
	xKeys     = []string{"X", "x", "lon", "lng", "longitude", "0"}
	yKeys     = []string{"Y", "y", "lat", "latitude", "1"}
	labelKeys = []string{"Bornes", "bornes", "borne", "label"}
	listKeys  = []string{"coordinates", "raw", "points"}
)

// DecodePoints accepts a bare array, {"coordinates": [...]} or
// {"raw": [...]}. Items are [x, y] pairs or objects with x/y style keys;
// values may be numbers or numeric strings. Items without both axes are
// skipped.
func DecodePoints(b []byte) ([]model.IncomingPoint, error) {
	items, err := pointItems(bytes.TrimSpace(b))
	if err != nil {
		return nil, err
	}
	out := make([]model.IncomingPoint, 0, len(items))
	for _, it := range items {
		if p, ok := pointFrom(it); ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCoordinates
	}
	return out, nil
}

func pointItems(b []byte) ([]json.RawMessage, error) {
	if len(b) == 0 {
		return nil, ErrNoCoordinates
	}
	switch b[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for _, k := range listKeys {
			raw, ok := obj[k]
			if !ok || isNull(raw) {
				continue
			}
			return pointItems(bytes.TrimSpace(raw))
		}
		return nil, ErrNoCoordinates
	}
	return nil, fmt.Errorf("%w: expected array or object", ErrMalformed)
}

func pointFrom(raw json.RawMessage) (model.IncomingPoint, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return model.IncomingPoint{}, false
	}
	switch raw[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
			return model.IncomingPoint{}, false
		}
		x, okx := scalarText(pair[0])
		y, oky := scalarText(pair[1])
		if !okx || !oky {
			return model.IncomingPoint{}, false
		}
		return model.IncomingPoint{X: x, Y: y}, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return model.IncomingPoint{}, false
		}
		x, okx := firstScalar(obj, xKeys)
		y, oky := firstScalar(obj, yKeys)
		if !okx || !oky {
			return model.IncomingPoint{}, false
		}
		label, _ := firstScalar(obj, labelKeys)
		return model.IncomingPoint{Bornes: label, X: x, Y: y}, true
	}
	return model.IncomingPoint{}, false
}

func firstScalar(obj map[string]json.RawMessage, keys []string) (string, bool) {
	for _, k := range keys {
		if raw, ok := obj[k]; ok {
			if s, ok := scalarText(raw); ok {
				return s, true
			}
		}
	}
	return "", false
}

// scalarText renders a JSON number or string as text. Numbers keep their
// literal form so no precision is lost before parsing.
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", false
	}
	return n.String(), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
