package orderbook

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WildcardSentinel is the reserved attribute value meaning "any".
const WildcardSentinel = "任意"

// AttrValue is either a concrete text value or the wildcard.
type AttrValue struct {
	text     string
	wildcard bool
}

func Concrete(text string) AttrValue { return AttrValue{text: text} }

var Wildcard = AttrValue{wildcard: true}

// ParseAttrValue maps the wire sentinel to Wildcard and anything else to Concrete.
func ParseAttrValue(s string) AttrValue {
	if s == WildcardSentinel {
		return Wildcard
	}
	return Concrete(s)
}

func (v AttrValue) IsWildcard() bool { return v.wildcard }
func (v AttrValue) Text() string     { return v.text }

func (v AttrValue) String() string {
	if v.wildcard {
		return WildcardSentinel
	}
	return v.text
}

type Attribute struct {
	Name  string
	Value AttrValue
}

// Attributes is an insertion-ordered attribute map. Names are unique.
type Attributes []Attribute

// Attrs builds Attributes from name/value pairs, parsing the wildcard sentinel.
func Attrs(pairs ...string) Attributes {
	if len(pairs)%2 != 0 {
		panic("orderbook: Attrs needs name/value pairs")
	}
	var out Attributes
	for i := 0; i < len(pairs); i += 2 {
		out = out.With(pairs[i], ParseAttrValue(pairs[i+1]))
	}
	return out
}

func (a Attributes) Get(name string) (AttrValue, bool) {
	for _, at := range a {
		if at.Name == name {
			return at.Value, true
		}
	}
	return AttrValue{}, false
}

// With returns a copy with name set to v, keeping the original position if present.
func (a Attributes) With(name string, v AttrValue) Attributes {
	out := a.Clone()
	for i := range out {
		if out[i].Name == name {
			out[i].Value = v
			return out
		}
	}
	return append(out, Attribute{Name: name, Value: v})
}

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// Map flattens the attributes for display; wildcard values become the sentinel.
func (a Attributes) Map() map[string]string {
	m := make(map[string]string, len(a))
	for _, at := range a {
		m[at.Name] = at.Value.String()
	}
	return m
}

// MarshalJSON writes a JSON object preserving attribute order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, at := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(at.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(at.Value.String())
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object in document order. Non-string values are
// kept in their literal JSON form.
func (a *Attributes) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes: expected object, got %v", tok)
	}

	var out Attributes
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := kt.(string)
		if !ok {
			return fmt.Errorf("attributes: expected key, got %v", kt)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		out = out.With(name, ParseAttrValue(s))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}
