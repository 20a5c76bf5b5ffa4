package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Wire field names shared by requests and outcome messages.
const (
	FieldHash            = "HASH"
	FieldAppID           = "APP_ID"
	FieldOrderID         = "ORDER_ID"
	FieldAmount          = "AMOUNT"
	FieldCurrencyCode    = "CURRENCY_CODE"
	FieldTxnType         = "TXNTYPE"
	FieldReturnURL       = "RETURN_URL"
	FieldResponseCode    = "RESPONSE_CODE"
	FieldStatus          = "STATUS"
	FieldTxnID           = "TXN_ID"
	FieldPGRefNum        = "PG_REF_NUM"
	FieldResponseMessage = "RESPONSE_MESSAGE"
)

var (
	// ErrEmptyBody is returned when an inbound message carries no bytes.
	ErrEmptyBody = errors.New("payment: empty body")
	// ErrInvalidJSON is returned when an inbound body is not valid JSON.
	ErrInvalidJSON = errors.New("payment: invalid json")
	// ErrUnrecognisedShape is returned when a JSON body is neither a single
	// outcome object nor an array led by one.
	ErrUnrecognisedShape = errors.New("payment: unrecognised response shape")
)

// Params is a flat field-to-value mapping as exchanged with the gateway.
type Params map[string]string

// Get returns the value for key, or "".
func (p Params) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

// Has reports whether key is present, even with an empty value.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without returns a copy with the given keys removed.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Keys returns the field names in ascending byte order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode renders the params as a JSON object with sorted keys.
func (p Params) Encode() ([]byte, error) {
	return json.Marshal(map[string]string(p))
}

// DecodeParams parses a JSON object into Params, flattening scalar values.
func DecodeParams(data []byte) (Params, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return flatten(raw), nil
}

// Shape discriminates the two body layouts the gateway sends.
type Shape int

const (
	// ShapeSingle is a bare outcome object.
	ShapeSingle Shape = iota + 1
	// ShapeWrapped is an array whose first element is the outcome object,
	// optionally followed by an API meta element.
	ShapeWrapped
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// ResponseBody is a gateway JSON body resolved into its outcome fields.
type ResponseBody struct {
	Shape  Shape
	Fields Params
	// Meta holds the trailing element of a wrapped body, when present.
	Meta Params
}

// ParseResponseBody resolves a webhook or status-enquiry body into a
// ResponseBody. The layout is decided here once and never re-inspected.
func ParseResponseBody(body []byte) (ResponseBody, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ResponseBody{}, ErrEmptyBody
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return ResponseBody{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return ResponseBody{}, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	switch v := doc.(type) {
	case []any:
		if len(v) == 0 {
			return ResponseBody{}, ErrUnrecognisedShape
		}
		first, ok := v[0].(map[string]any)
		if !ok {
			return ResponseBody{}, ErrUnrecognisedShape
		}
		out := ResponseBody{Shape: ShapeWrapped, Fields: flatten(first)}
		if len(v) > 1 {
			if meta, ok := v[1].(map[string]any); ok {
				out.Meta = flatten(meta)
			}
		}
		return out, nil
	case map[string]any:
		if _, ok := v[FieldOrderID]; !ok {
			return ResponseBody{}, ErrUnrecognisedShape
		}
		return ResponseBody{Shape: ShapeSingle, Fields: flatten(v)}, nil
	default:
		return ResponseBody{}, ErrUnrecognisedShape
	}
}

func flatten(raw map[string]any) Params {
	out := make(Params, len(raw))
	for k, v := range raw {
		out[k] = scalarString(v)
	}
	return out
}

// scalarString renders a decoded JSON value the way it appeared on the wire,
// so signatures computed by the gateway over the literal text still verify.
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
