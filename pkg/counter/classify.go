package counter

import "strings"

// UnknownMIME is used when a record carries no mime type. It classifies as Other.
const UnknownMIME = "unknown"

type mimeRule struct {
	exact    []string
	prefixes []string
	category Category
}

// mimeRules are evaluated in order; the first match wins.
var mimeRules = []mimeRule{
	{exact: []string{"text/html", "application/xhtml+xml", "text/plain"}, category: HTML},
	{exact: []string{"text/css"}, category: CSS},
	{prefixes: []string{"image/"}, category: Image},
	{exact: []string{"application/pdf"}, category: PDF},
	{prefixes: []string{"video/"}, category: Video},
	{prefixes: []string{"audio/"}, category: Audio},
	{exact: []string{"application/javascript", "text/javascript", "application/x-javascript"}, category: JS},
	{exact: []string{"application/json", "text/json"}, category: JSON},
	{
		exact:    []string{"application/vnd.ms-fontobject"},
		prefixes: []string{"font/", "application/font", "application/x-font"},
		category: Font,
	},
}

// Classify maps a raw mime string onto a content category.
// Matching is exact and case-sensitive, as recorded in the index.
func Classify(mime string) Category {
	for _, r := range mimeRules {
		for _, e := range r.exact {
			if mime == e {
				return r.category
			}
		}
		for _, p := range r.prefixes {
			if strings.HasPrefix(mime, p) {
				return r.category
			}
		}
	}
	return Other
}

// SchemeCategory maps a URL scheme onto HTTP or HTTPS.
func SchemeCategory(scheme string) (Category, bool) {
	switch scheme {
	case "http":
		return HTTP, true
	case "https":
		return HTTPS, true
	default:
		return 0, false
	}
}
