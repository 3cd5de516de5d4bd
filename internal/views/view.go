// Package views persists saved report views in a JSON array file.
//
// A view is an arbitrary JSON object with an "id". The store never
// interprets the rest of the object; it is kept byte-for-byte in its
// original key order.
package views

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

var (
	ErrNotArray  = errors.New("views payload is not a JSON array")
	ErrMissingID = errors.New("view has no usable id")
)

var idPath = jp.C("id")

// View is one saved view. ID is the string form of the object's id.
type View struct {
	ID  string
	Raw json.RawMessage
}

// MarshalJSON writes the original object.
func (v View) MarshalJSON() ([]byte, error) {
	if len(v.Raw) == 0 {
		return []byte("null"), nil
	}
	return v.Raw, nil
}

// ParseView validates one view object and extracts its id.
func ParseView(raw json.RawMessage) (View, error) {
	doc, err := oj.Parse(raw)
	if err != nil {
		return View{}, fmt.Errorf("parse view: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return View{}, fmt.Errorf("%w: not an object", ErrMissingID)
	}
	id, ok := idString(idPath.First(doc))
	if !ok {
		return View{}, ErrMissingID
	}
	return View{ID: id, Raw: raw}, nil
}

// ParseViews decodes a request body holding an array of views.
func ParseViews(body []byte) ([]View, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil || items == nil {
		return nil, ErrNotArray
	}
	out := make([]View, 0, len(items))
	for i, raw := range items {
		v, err := ParseView(raw)
		if err != nil {
			return nil, fmt.Errorf("view %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// idString renders a string or numeric id the way it appears in a URL.
// Integers beyond int64 arrive from the parser as json.Number.
func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	}
	return "", false
}
