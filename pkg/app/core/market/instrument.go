package market

import (
	"fmt"
)

// Status is the trading status of an instrument.
type Status int8

const (
	Active Status = iota // accepting orders
	Paused               // listed but halted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// AttributeSpec names one descriptive attribute of an instrument and the
// values offered for it. Orders may also use the wildcard.
type AttributeSpec struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

// Instrument is one tradable commodity sub-type, e.g. rebar within steel.
type Instrument struct {
	ID           string          `json:"id"`
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Attributes   []AttributeSpec `json:"attributes"`
	Status       Status          `json:"status"`
}

func (i *Instrument) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("instrument id cannot be empty")
	}
	if i.CategoryID == "" {
		return fmt.Errorf("instrument %s: category cannot be empty", i.ID)
	}
	seen := make(map[string]bool, len(i.Attributes))
	for _, a := range i.Attributes {
		if a.Name == "" {
			return fmt.Errorf("instrument %s: attribute name cannot be empty", i.ID)
		}
		if seen[a.Name] {
			return fmt.Errorf("instrument %s: duplicate attribute %s", i.ID, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// Attribute looks up the spec of a named attribute.
func (i *Instrument) Attribute(name string) (AttributeSpec, bool) {
	for _, a := range i.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSpec{}, false
}
