package cdx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eunmann/cdxsum/pkg/counter"
)

// Decoder turns one raw index line into a Result. A Decoder is chosen once
// per stream and is not safe for concurrent use.
type Decoder interface {
	Format() Format
	Decode(line string) Result
}

// NewDecoder returns the decoder for f.
func NewDecoder(f Format, opts Options) (Decoder, error) {
	if opts.MaxYear == 0 {
		opts.MaxYear = DefaultOptions().MaxYear
	}
	switch f {
	case FormatCDXJ:
		return &cdxjDecoder{opts: opts}, nil
	case FormatCDX7:
		return &cdx7Decoder{opts: opts}, nil
	case FormatNbams:
		return &nbamsDecoder{opts: opts}, nil
	case FormatNbamskrMSVg:
		return &extendedDecoder{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// splitLine trims the line and reports header and blank lines as skipped.
func splitLine(line string) ([]string, Result, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, skipped("blank line"), false
	}
	if strings.HasPrefix(trimmed, "CDX") {
		return nil, skipped("header"), false
	}
	return strings.Fields(trimmed), Result{}, true
}

// positional builds a Record from the fields shared by the plain CDX layouts:
// timestamp, original URL, mime, status.
func positional(key string, fields []string, lengthField string, opts Options) Result {
	if key == "" {
		return malformed("empty aggregation key")
	}
	bucket, res, ok := bucketFromTimestamp(fields[1], opts)
	if !ok {
		return res
	}
	status := fields[4]
	if status == "" || status[0] != '2' {
		return skipped("status " + status)
	}
	mime := fields[3]
	if mime == metadataMIME {
		return skipped("metadata record")
	}
	return decoded(Record{
		Key:         key,
		Bucket:      bucket,
		Scheme:      schemeOf(fields[2]),
		MIME:        mime,
		Length:      parseLength(lengthField),
		StatusClass: status[0],
	})
}

type cdx7Decoder struct{ opts Options }

func (d *cdx7Decoder) Format() Format { return FormatCDX7 }

// Decode parses "SURT timestamp url mime status digest length".
func (d *cdx7Decoder) Decode(line string) Result {
	fields, res, ok := splitLine(line)
	if !ok {
		return res
	}
	if len(fields) < 7 {
		return malformed(fmt.Sprintf("expected 7 fields, got %d", len(fields)))
	}
	return positional(KeyFromSURT(fields[0], d.opts.FullHost), fields, fields[6], d.opts)
}

type nbamsDecoder struct{ opts Options }

func (d *nbamsDecoder) Format() Format { return FormatNbams }

// Decode parses "massaged-url timestamp url mime status ..."; extra fields
// are ignored and no length is available.
func (d *nbamsDecoder) Decode(line string) Result {
	fields, res, ok := splitLine(line)
	if !ok {
		return res
	}
	if len(fields) < 5 {
		return malformed(fmt.Sprintf("expected at least 5 fields, got %d", len(fields)))
	}
	return positional(KeyFromMassaged(fields[0], d.opts.FullHost), fields, "", d.opts)
}

type extendedDecoder struct{ opts Options }

func (d *extendedDecoder) Format() Format { return FormatNbamskrMSVg }

// sizeFieldExtended is the position of S in "N b a m s k r M S V g".
const sizeFieldExtended = 8

// Decode parses "N b a m s k r M S V g". OutbackCDX writes N as a SURT,
// OpenWayback as a massaged URL; the key form follows the field's shape.
func (d *extendedDecoder) Decode(line string) Result {
	fields, res, ok := splitLine(line)
	if !ok {
		return res
	}
	if len(fields) <= sizeFieldExtended {
		return malformed(fmt.Sprintf("expected 11 fields, got %d", len(fields)))
	}
	var key string
	if looksLikeSURT(fields[0]) {
		key = KeyFromSURT(fields[0], d.opts.FullHost)
	} else {
		key = KeyFromMassaged(fields[0], d.opts.FullHost)
	}
	return positional(key, fields, fields[sizeFieldExtended], d.opts)
}

type cdxjDecoder struct{ opts Options }

func (d *cdxjDecoder) Format() Format { return FormatCDXJ }

// cdxjPayload is the subset of the CDXJ JSON block that is counted.
// pywb writes status and length as strings, some producers as numbers.
type cdxjPayload struct {
	URL    flexString  `json:"url"`
	MIME   *flexString `json:"mime"`
	Status *flexString `json:"status"`
	Length flexString  `json:"length"`
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(data) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(data)
	return nil
}

// apostropheQuirk is an escaped apostrophe seen in some CDXJ corpora; it is
// not valid JSON and is replaced before parsing.
const apostropheQuirk = `\'`

// Decode parses "SURT timestamp {json}".
func (d *cdxjDecoder) Decode(line string) Result {
	fields, res, ok := splitLine(line)
	if !ok {
		return res
	}
	if len(fields) < 3 {
		return malformed(fmt.Sprintf("expected at least 3 fields, got %d", len(fields)))
	}
	key := KeyFromSURT(fields[0], d.opts.FullHost)
	if key == "" {
		return malformed("empty aggregation key")
	}
	bucket, res, ok := bucketFromTimestamp(fields[1], d.opts)
	if !ok {
		return res
	}

	start := strings.Index(line, ` {"`)
	end := strings.LastIndexByte(line, '}')
	if start < 0 || end < start {
		return malformed("no JSON block")
	}
	block := strings.ReplaceAll(line[start+1:end+1], apostropheQuirk, "--")

	var p cdxjPayload
	if err := json.Unmarshal([]byte(block), &p); err != nil {
		return malformed("invalid JSON: " + err.Error())
	}

	var class byte
	if p.Status != nil {
		status := string(*p.Status)
		if status == "" || status[0] != '2' {
			return skipped("status " + status)
		}
		class = status[0]
	}
	mime := counter.UnknownMIME
	if p.MIME != nil {
		mime = string(*p.MIME)
	}
	if mime == metadataMIME {
		return skipped("metadata record")
	}

	return decoded(Record{
		Key:         key,
		Bucket:      bucket,
		Scheme:      schemeOf(string(p.URL)),
		MIME:        mime,
		Length:      parseLength(string(p.Length)),
		StatusClass: class,
	})
}
