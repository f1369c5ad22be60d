// Package counter defines the fixed-shape content-type and scheme aggregate
// produced for every (host, time bucket) pair.
package counter

import (
	"fmt"
	"strconv"
)

// Category identifies one slot of a Vector.
type Category uint8

// Content categories come first, then the two scheme categories and the total.
const (
	HTML Category = iota
	Image
	Video
	Audio
	PDF
	JS
	JSON
	Font
	CSS
	Other
	HTTP
	HTTPS
	Total
	NumCategories // Sentinel value for array sizing
)

var categoryNames = [NumCategories]string{
	"html", "image", "video", "audio", "pdf", "js", "json", "font", "css", "other", "http", "https", "total",
}

// String returns the short category name used in field names.
func (c Category) String() string {
	if c < NumCategories {
		return categoryNames[c]
	}
	return "unknown"
}

// CountField returns the output field name for the count of c (e.g. "n_html").
func (c Category) CountField() string { return "n_" + c.String() }

// SizeField returns the output field name for the byte sum of c (e.g. "s_html").
func (c Category) SizeField() string { return "s_" + c.String() }

// FieldNames lists all 26 output field names in output order:
// every count field first, then every size field.
func FieldNames() []string {
	names := make([]string, 0, 2*int(NumCategories))
	for c := HTML; c < NumCategories; c++ {
		names = append(names, c.CountField())
	}
	for c := HTML; c < NumCategories; c++ {
		names = append(names, c.SizeField())
	}
	return names
}

// Vector holds a count and a byte-size sum per category.
//
// Total is incremented by every content classification; HTTP and HTTPS only
// when the scheme is known, so N[HTTP]+N[HTTPS] <= N[Total].
type Vector struct {
	N [NumCategories]uint64
	S [NumCategories]uint64
}

// AddMIME classifies mime and adds count/size to its content category and to Total.
func (v *Vector) AddMIME(mime string, count, size uint64) {
	c := Classify(mime)
	v.N[c] += count
	v.S[c] += size
	v.N[Total] += count
	v.S[Total] += size
}

// AddScheme adds count/size to the scheme category for scheme.
// Unknown or blank schemes are ignored.
func (v *Vector) AddScheme(scheme string, count, size uint64) {
	c, ok := SchemeCategory(scheme)
	if !ok {
		return
	}
	v.N[c] += count
	v.S[c] += size
}

// Add records one capture of the given mime and scheme with size bytes.
func (v *Vector) Add(mime, scheme string, size uint64) {
	v.AddMIME(mime, 1, size)
	v.AddScheme(scheme, 1, size)
}

// Merge adds every counter of other into v.
func (v *Vector) Merge(other *Vector) {
	for i := range v.N {
		v.N[i] += other.N[i]
	}
	for i := range v.S {
		v.S[i] += other.S[i]
	}
}

// Map returns the vector as field name -> value, including zero fields.
func (v *Vector) Map() map[string]uint64 {
	m := make(map[string]uint64, 2*int(NumCategories))
	for c := HTML; c < NumCategories; c++ {
		m[c.CountField()] = v.N[c]
		m[c.SizeField()] = v.S[c]
	}
	return m
}

// FromMap builds a Vector from field name -> value. Missing fields are zero;
// unknown fields are ignored.
func FromMap(m map[string]uint64) Vector {
	var v Vector
	for c := HTML; c < NumCategories; c++ {
		v.N[c] = m[c.CountField()]
		v.S[c] = m[c.SizeField()]
	}
	return v
}

// AppendJSON appends v as a JSON object with fields in output order.
// With compact set, zero-valued fields are omitted.
func (v *Vector) AppendJSON(buf []byte, compact bool) []byte {
	buf = append(buf, '{')
	first := true
	field := func(name string, val uint64) {
		if compact && val == 0 {
			return
		}
		if !first {
			buf = append(buf, ", "...)
		}
		first = false
		buf = append(buf, '"')
		buf = append(buf, name...)
		buf = append(buf, `": `...)
		buf = strconv.AppendUint(buf, val, 10)
	}
	for c := HTML; c < NumCategories; c++ {
		field(c.CountField(), v.N[c])
	}
	for c := HTML; c < NumCategories; c++ {
		field(c.SizeField(), v.S[c])
	}
	return append(buf, '}')
}

// Get returns the value of a named field.
func (v *Vector) Get(field string) (uint64, error) {
	for c := HTML; c < NumCategories; c++ {
		switch field {
		case c.CountField():
			return v.N[c], nil
		case c.SizeField():
			return v.S[c], nil
		}
	}
	return 0, fmt.Errorf("unknown counter field %q", field)
}
