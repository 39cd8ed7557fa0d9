package enrich

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	multiOwnerRe = regexp.MustCompile(`(?i)\s+(?:&|AND)\s+`)

	suffixes = map[string]bool{
		"JR": true, "SR": true, "II": true, "III": true, "IV": true, "V": true,
	}

	entityTokens = map[string]bool{
		"LLC": true, "L.L.C": true, "INC": true, "TRUST": true,
		"LP": true, "LLP": true, "CORP": true, "CO": true, "COMPANY": true,
	}
)

var titleCaser = cases.Title(language.English)

// SplitOwner splits an owner-of-record string into (first, last).
//
// Deed records come in several shapes:
//   - "First Last ..."            natural order
//   - "LAST, FIRST MIDDLE"        comma form
//   - "EVANS KATIE J"             all-caps deed order: last first middle
//   - "A & B" / "A AND B"         multiple owners; the first one wins
//   - entities (LLC, Trust, Inc)  no personal name, ("", "")
//
// Generational suffixes (Jr, Sr, II..V) are dropped throughout.
func SplitOwner(name string) (first, last string) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", ""
	}

	owner := strings.TrimSpace(multiOwnerRe.Split(n, 2)[0])
	if owner == "" {
		return "", ""
	}

	if isEntity(owner) {
		return "", ""
	}

	if i := strings.Index(owner, ","); i >= 0 {
		last = strings.TrimSpace(owner[:i])
		rest := dropSuffixes(strings.Fields(owner[i+1:]))
		if len(rest) > 0 {
			first = rest[0]
		}
		return first, last
	}

	tokens := strings.Fields(owner)
	if len(tokens) == 1 {
		return "", tokens[0]
	}

	// All-caps strings are deed order: LAST FIRST MI.
	if owner == strings.ToUpper(owner) {
		last = tokens[0]
		rest := dropSuffixes(tokens[1:])
		if len(rest) > 0 {
			first = rest[0]
		}
		return titleCaser.String(strings.ToLower(first)), titleCaser.String(strings.ToLower(last))
	}

	first = tokens[0]
	rest := dropSuffixes(tokens[1:])
	return first, strings.Join(rest, " ")
}

// isEntity matches whole tokens only; substring matching would swallow
// personal names ("JACOB" contains "CO").
func isEntity(owner string) bool {
	for _, tok := range strings.Fields(strings.ToUpper(owner)) {
		if entityTokens[strings.Trim(tok, ".,")] {
			return true
		}
	}
	return false
}

func dropSuffixes(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if !suffixes[strings.ToUpper(t)] {
			out = append(out, t)
		}
	}
	return out
}
