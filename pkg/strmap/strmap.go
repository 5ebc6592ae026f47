// Package strmap provides an insertion-ordered string to string map with a
// JSON object codec. Go maps do not preserve key order, and the persisted key
// files are read by people as well as by the bot, so entries keep the order in
// which they were first written.
package strmap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ErrUnchanged is returned by mutation callbacks that decided no write is needed.
var ErrUnchanged = errors.New("strmap: unchanged")

// ErrNotObject is returned when the decoded document is not a JSON object.
var ErrNotObject = errors.New("strmap: document is not a JSON object")

// Entry is a single key/value pair.
type Entry struct {
	Key   string
	Value string
}

// Map is an insertion-ordered map. The zero value is not usable; call New.
type Map struct {
	keys  []string
	index map[string]string
}

// New returns an empty map.
func New() *Map {
	return &Map{index: make(map[string]string)}
}

// FromEntries builds a map from entries, later duplicates overwriting earlier values.
func FromEntries(entries ...Entry) *Map {
	m := New()
	for _, e := range entries {
		m.Set(e.Key, e.Value)
	}
	return m
}

func (m *Map) Len() int { return len(m.keys) }

func (m *Map) Get(key string) (string, bool) {
	v, ok := m.index[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Set inserts or overwrites key. Overwriting keeps the original position.
func (m *Map) Set(key, value string) {
	if _, ok := m.index[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.index[key] = value
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if _, ok := m.index[key]; !ok {
		return false
	}
	delete(m.index, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Entries returns the pairs in insertion order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, Entry{Key: k, Value: m.index[k]})
	}
	return out
}

// ContainsValue reports whether any key maps to value.
func (m *Map) ContainsValue(value string) bool {
	for _, v := range m.index {
		if v == value {
			return true
		}
	}
	return false
}

// KeyForValue returns the first key (in insertion order) mapped to value.
func (m *Map) KeyForValue(value string) (string, bool) {
	for _, k := range m.keys {
		if m.index[k] == value {
			return k, true
		}
	}
	return "", false
}

// Values returns a set of all values.
func (m *Map) Values() map[string]struct{} {
	out := make(map[string]struct{}, len(m.index))
	for _, v := range m.index {
		out[v] = struct{}{}
	}
	return out
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	c := &Map{
		keys:  make([]string, len(m.keys)),
		index: make(map[string]string, len(m.index)),
	}
	copy(c.keys, m.keys)
	for k, v := range m.index {
		c.index[k] = v
	}
	return c
}

// Equal reports whether both maps hold the same pairs in the same order.
func (m *Map) Equal(other *Map) bool {
	if other == nil || len(m.keys) != len(other.keys) {
		return false
	}
	for i, k := range m.keys {
		if other.keys[i] != k || other.index[k] != m.index[k] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the map as a compact JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+len(m.keys)*32)
	buf = append(buf, '{')
	for i, k := range m.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.index[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON decodes a JSON object, keeping document order. Non-string
// values are stored using their raw JSON text.
func (m *Map) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// Decode parses a JSON object document.
func Decode(data []byte) (*Map, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("strmap: invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, ErrNotObject
	}
	m := New()
	doc.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.String {
			m.Set(k.String(), v.String())
		} else {
			m.Set(k.String(), v.Raw)
		}
		return true
	})
	return m, nil
}

// Encode renders the map as a JSON object indented with four spaces.
func Encode(m *Map) ([]byte, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(raw, &pretty.Options{
		Width:    80,
		Indent:   "    ",
		SortKeys: false,
	}), nil
}
