package merge

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/eunmann/cdxsum/pkg/cdx"
)

// Simplifier maps a host onto the key it is combined under.
type Simplifier interface {
	Name() string
	Simplify(host string) string
	// PreservesOrder reports whether sorted input stays sorted after
	// simplification, which sorted combine requires.
	PreservesOrder() bool
}

// Simplifier names accepted by ParseSimplifier.
const (
	SimplifyNone             = "none"
	SimplifyLevel2           = "lvl2"
	SimplifyPublicSuffixList = "publicsuffixlist"
)

// ParseSimplifier returns the simplifier for name. "" means none.
func ParseSimplifier(name string) (Simplifier, error) {
	switch strings.ToLower(name) {
	case "", SimplifyNone:
		return identity{}, nil
	case SimplifyLevel2, "level2":
		return level2{}, nil
	case SimplifyPublicSuffixList, "psl":
		return publicSuffix{}, nil
	default:
		return nil, fmt.Errorf("invalid host aggregation %q: must be one of none, lvl2, publicsuffixlist", name)
	}
}

type identity struct{}

func (identity) Name() string                { return SimplifyNone }
func (identity) Simplify(host string) string { return host }
func (identity) PreservesOrder() bool        { return true }

// level2 keeps the last two labels: www.example.co.uk -> co.uk.
type level2 struct{}

func (level2) Name() string                { return SimplifyLevel2 }
func (level2) Simplify(host string) string { return cdx.Level2(host) }
func (level2) PreservesOrder() bool        { return false }

// publicSuffix keeps the registrable domain: www.example.co.uk -> example.co.uk.
// Hosts that are themselves public suffixes, or not domains at all, are kept.
type publicSuffix struct{}

func (publicSuffix) Name() string { return SimplifyPublicSuffixList }

func (publicSuffix) Simplify(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || d == "" {
		return host
	}
	return d
}

func (publicSuffix) PreservesOrder() bool { return false }
