package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	zipRe      = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
	multiSpace = regexp.MustCompile(`\s{2,}`)
	unitToken  = regexp.MustCompile(`(?i),?\s*(Unit|Ste|Suite|Bldg|Building|Apt|#)\s+[A-Za-z0-9\-]+`)
	moneyClean = regexp.MustCompile(`[^0-9.\-]`)
)

// ParseCombined splits a combined address blob into property, city, and zip.
//
// Three tiers, in order:
//  1. comma-segmented split when a comma is present; the zip is the last
//     whitespace token of the trailing segment when it looks like a zip
//  2. no comma: split on a run of 2+ consecutive spaces as the street/city
//     separator
//  3. fallback: split on the last single space, final token is the city
//
// Site markup is inconsistent and different sources rely on different tiers;
// the order must not change.
func ParseCombined(blob string) (property, city, zip string) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return "", "", ""
	}

	if strings.Contains(blob, ",") {
		segs := strings.Split(blob, ",")
		for i := range segs {
			segs[i] = strings.TrimSpace(segs[i])
		}

		tail := segs[len(segs)-1]
		if toks := strings.Fields(tail); len(toks) > 0 && zipRe.MatchString(toks[len(toks)-1]) {
			zip = toks[len(toks)-1]
		}

		if len(segs) >= 3 {
			return collapse(segs[0]), collapse(segs[1]), zip
		}

		// Two segments. When the trailing segment is only a state+zip, the
		// leading one still holds "street   city".
		if zip == "" {
			return collapse(segs[0]), collapse(segs[1]), ""
		}
		property, city = splitStreetCity(segs[0])
		return property, city, zip
	}

	property, city = splitStreetCity(blob)
	return property, city, ""
}

// splitStreetCity applies tiers 2 and 3 to a comma-free "street city" blob.
func splitStreetCity(s string) (property, city string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}

	if loc := multiSpace.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[:loc[0]]), collapse(s[loc[1]:])
	}

	idx := strings.LastIndex(s, " ")
	if idx < 0 {
		return s, ""
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:])
}

// ParseCityLine splits a "CityName STATE ZIP" line. City names may carry
// internal spaces ("Warner Robins GA 31088").
func ParseCityLine(line string) (city, zip string) {
	parts := strings.Fields(line)
	switch {
	case len(parts) >= 3:
		return strings.Join(parts[:len(parts)-2], " "), parts[len(parts)-1]
	case len(parts) == 2:
		return parts[0], parts[1]
	default:
		return strings.TrimSpace(line), ""
	}
}

// LastZipToken extracts the trailing zip-looking token of a segment
// ("GA 30087" -> "30087"), or "" when none is present.
func LastZipToken(seg string) string {
	toks := strings.Fields(seg)
	if len(toks) == 0 {
		return ""
	}
	if zipRe.MatchString(toks[len(toks)-1]) {
		return toks[len(toks)-1]
	}
	return ""
}

// NormalizeUnit strips unit/suite/building designators from a street address
// and collapses whitespace. The valuation service resolves unit-less
// addresses more reliably.
func NormalizeUnit(addr string) string {
	return collapse(unitToken.ReplaceAllString(addr, ""))
}

// ParseMoney extracts a numeric amount from free-form currency text
// ("$1,234,567" -> 1234567). Returns false when no amount is present.
func ParseMoney(text string) (float64, bool) {
	text = strings.ReplaceAll(text, " ", " ")
	raw := moneyClean.ReplaceAllString(text, "")
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
