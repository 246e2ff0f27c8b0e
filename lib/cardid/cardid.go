package cardid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidID = fmt.Errorf("invalid card id format")

var (
	normalIDRegex = regexp.MustCompile(`^[A-Z]+[0-9]{2}-[0-9]{3}$`)
	promoIDRegex  = regexp.MustCompile(`^P-[0-9]{3}$`)
	// matches "v=2" anywhere, including legacy path forms like "OP01-001V=1"
	// and already-decoded query fragments like "OP01-001?v=1"
	embeddedVersionRegex = regexp.MustCompile(`(?i)V=(\d+)`)
	querySplitRegex      = regexp.MustCompile(`[?&]`)
)

// CardID is the canonical (base, print version) pair used as the single
// key throughout the system: cache key, snapshot-store key and the
// card_id field returned by the API all use CardID.Key().
type CardID struct {
	Base    string
	Version int
}

// Key renders the canonical textual encoding: the base code alone for the
// default print, base + "v=" + version for alternate prints.
func (id CardID) Key() string {
	if id.Version > 0 {
		return id.Base + "v=" + strconv.Itoa(id.Version)
	}
	return id.Base
}

// Normalize parses a raw, possibly legacy-encoded card reference.
// An explicit version (the ?v= query parameter of the price endpoint)
// takes precedence over a version marker embedded in the raw string;
// with neither present the version is 0. Negative versions clamp to 0.
//
// Accepted raw forms include "OP01-001", "P-001", "OP01-001?v=2",
// "OP01-001V=2" and "op01-001v=2".
func Normalize(raw string, explicitVersion *int) (CardID, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	version := 0
	if m := embeddedVersionRegex.FindStringSubmatch(s); m != nil {
		version, _ = strconv.Atoi(m[1])
	}
	if explicitVersion != nil {
		version = *explicitVersion
	}
	if version < 0 {
		version = 0
	}

	base := stripVersion(s)
	if !normalIDRegex.MatchString(base) && !promoIDRegex.MatchString(base) {
		return CardID{}, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}

	return CardID{Base: base, Version: version}, nil
}

// NormalizeLenient is the history-lookup variant: rows may have been
// written under slightly different rules by older batch runs, so instead
// of rejecting an off-grammar base it sanitizes it best-effort. This is a
// deliberate leniency boundary, not an error path.
func NormalizeLenient(raw string) CardID {
	s := strings.ToUpper(strings.TrimSpace(raw))

	version := 0
	if m := embeddedVersionRegex.FindStringSubmatch(s); m != nil {
		version, _ = strconv.Atoi(m[1])
	}

	base := stripVersion(s)
	if !normalIDRegex.MatchString(base) && !promoIDRegex.MatchString(base) {
		base = strings.TrimSpace(strings.NewReplacer(" ", "", "/", "").Replace(base))
	}

	return CardID{Base: base, Version: version}
}

func stripVersion(s string) string {
	base := querySplitRegex.Split(s, 2)[0]
	base = embeddedVersionRegex.ReplaceAllString(base, "")
	return strings.TrimSpace(base)
}
