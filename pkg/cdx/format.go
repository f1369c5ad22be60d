// Package cdx decodes web-archive index lines (CDX and CDXJ families) into
// normalized capture records keyed by host and time bucket.
package cdx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownFormat indicates a stream whose first line matches no supported format.
	ErrUnknownFormat = errors.New("unknown CDX format")
	// ErrAmbiguousFormat indicates a 10-field legacy line whose layout cannot be told
	// apart from its field count; the format must be configured explicitly.
	ErrAmbiguousFormat = errors.New("ambiguous legacy CDX layout: set the format explicitly")
)

// Format identifies one of the supported index line layouts.
type Format uint8

const (
	FormatUnknown Format = iota
	// FormatCDXJ is "SURT timestamp {json}" as produced by pywb and Common Crawl.
	FormatCDXJ
	// FormatCDX7 is the 7-field "N b a m s k S" layout of the Internet Archive CDX server.
	FormatCDX7
	// FormatNbams is the legacy "N b a m s" layout keyed by massaged URL.
	FormatNbams
	// FormatNbamskrMSVg is the extended OpenWayback layout with compressed size.
	FormatNbamskrMSVg
)

var formatNames = map[Format]string{
	FormatUnknown:     "auto",
	FormatCDXJ:        "cdxj",
	FormatCDX7:        "cdx7",
	FormatNbams:       "cdxNbams",
	FormatNbamskrMSVg: "cdxNbamskrMSVg",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// ParseFormat maps a configuration name to a Format. "auto" and "" map to
// FormatUnknown, which requests detection.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return FormatUnknown, nil
	}
	for f, n := range formatNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("invalid format %q: must be one of auto, cdxj, cdx7, cdxNbams, cdxNbamskrMSVg", name)
}

const (
	headerNbamskrMSVg = "N b a m s k r M S V g"
	headerNbams       = "N b a m s"
)

// Detect selects the format of a stream from its first line.
// It returns ErrUnknownFormat or ErrAmbiguousFormat when no format can be chosen.
func Detect(line string) (Format, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "CDX") {
		letters := strings.Join(strings.Fields(strings.TrimPrefix(trimmed, "CDX")), " ")
		switch {
		case letters == headerNbamskrMSVg:
			return FormatNbamskrMSVg, nil
		case letters == headerNbams || strings.HasPrefix(letters, headerNbams+" "):
			return FormatNbams, nil
		default:
			return FormatUnknown, fmt.Errorf("%w: header %q", ErrUnknownFormat, trimmed)
		}
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 3 {
		return FormatUnknown, fmt.Errorf("%w: %d fields", ErrUnknownFormat, len(fields))
	}
	if !isTimestamp(fields[1]) {
		return FormatUnknown, fmt.Errorf("%w: second field %q is not a 14-digit timestamp", ErrUnknownFormat, fields[1])
	}
	if strings.HasSuffix(trimmed, `"}`) {
		return FormatCDXJ, nil
	}

	switch len(fields) {
	case 7:
		return FormatCDX7, nil
	case 10:
		return FormatUnknown, ErrAmbiguousFormat
	case 11:
		return FormatNbamskrMSVg, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %d fields", ErrUnknownFormat, len(fields))
	}
}

func isTimestamp(s string) bool {
	return len(s) == 14 && isDigits(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
