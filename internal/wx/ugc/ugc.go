// Package ugc parses Universal Geographic Code header lines, the
// SSTNNN-delimited county/zone lists ("OHC049-041-061>065-201530-") that
// precede most NWS text products and enumerate the affected areas.
package ugc

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/alertwx/internal/wx/patterns"
)

// StateFIPS maps 2-letter state/territory postal codes to their FIPS
// numeric code, used to build the 5-digit county FIPS code for county UGCs.
var StateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06", "CO": "08",
	"CT": "09", "DE": "10", "DC": "11", "FL": "12", "GA": "13", "HI": "15",
	"ID": "16", "IL": "17", "IN": "18", "IA": "19", "KS": "20", "KY": "21",
	"LA": "22", "ME": "23", "MD": "24", "MA": "25", "MI": "26", "MN": "27",
	"MS": "28", "MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38", "OH": "39",
	"OK": "40", "OR": "41", "PA": "42", "RI": "44", "SC": "45", "SD": "46",
	"TN": "47", "TX": "48", "UT": "49", "VT": "50", "VA": "51", "WA": "53",
	"WV": "54", "WI": "55", "WY": "56", "AS": "60", "GU": "66", "MP": "69",
	"PR": "72", "VI": "78",
}

// Code is one decoded UGC entry, e.g. state "OH", zoneType 'C', number 49.
type Code struct {
	State    string
	ZoneType byte // 'C' for county, 'Z' for zone
	Number   int
}

// String renders the code back to its 6-character UGC form, e.g. "OHC049".
func (c Code) String() string {
	return fmt.Sprintf("%s%c%03d", c.State, c.ZoneType, c.Number)
}

// IsCounty reports whether this is a county-based code.
func (c Code) IsCounty() bool { return c.ZoneType == 'C' }

// IsZone reports whether this is a forecast-zone code.
func (c Code) IsZone() bool { return c.ZoneType == 'Z' }

// FIPS returns the 5-digit FIPS code for a county UGC, or "" for a zone
// (zones have no FIPS equivalent).
func (c Code) FIPS() string {
	if !c.IsCounty() {
		return ""
	}
	state, ok := StateFIPS[c.State]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s%03d", state, c.Number)
}

// ParsedLine is the result of decoding one (possibly multi-line) UGC header.
type ParsedLine struct {
	Codes      []Code
	Expiration time.Time
}

// ParseLine decodes a single already-joined UGC line, e.g.
// "OHC049-041-061>065-201530-". The expiration day/hour/minute stamp is
// reconstructed against referenceTime's month and year, rolling forward a
// month if the reconstructed date would otherwise fall in the past.
func ParseLine(logger *slog.Logger, line string, referenceTime time.Time) (ParsedLine, error) {
	m := patterns.UGCLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return ParsedLine{}, fmt.Errorf("ugc: line does not match UGC header format: %q", line)
	}

	codes, err := parseTokens(m[1])
	if err != nil {
		return ParsedLine{}, err
	}

	expiration, err := reconstructExpiration(m[2], referenceTime)
	if err != nil {
		return ParsedLine{}, err
	}

	return ParsedLine{Codes: codes, Expiration: expiration}, nil
}

// JoinContinuationLines concatenates a UGC header with following
// continuation lines (bare digit/dash lines produced when the header wraps)
// into one line ParseLine can consume.
func JoinContinuationLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	joined := strings.TrimRight(strings.TrimSpace(lines[0]), "-")
	for _, cont := range lines[1:] {
		cont = strings.TrimSpace(cont)
		if !patterns.UGCContinuation.MatchString(cont) {
			break
		}
		joined += "-" + strings.TrimRight(cont, "-")
	}
	return joined + "-"
}

func parseTokens(body string) ([]Code, error) {
	tokens := strings.Split(body, "-")
	var codes []Code
	var currentPrefix string
	var currentType byte

	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		if pm := patterns.UGCPrefix.FindStringSubmatch(tok); pm != nil {
			currentPrefix = pm[1][:2]
			currentType = pm[1][2]
			tok = pm[2]
		}

		if currentPrefix == "" {
			return nil, fmt.Errorf("ugc: token %q has no state/zone-type prefix", tok)
		}

		if idx := strings.Index(tok, ">"); idx >= 0 {
			lowStr, highStr := tok[:idx], tok[idx+1:]
			low, err1 := strconv.Atoi(lowStr)
			high, err2 := strconv.Atoi(highStr)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("ugc: invalid range %q", tok)
			}
			if low > high {
				low, high = high, low
			}
			for n := low; n <= high; n++ {
				codes = append(codes, Code{State: currentPrefix, ZoneType: currentType, Number: n})
			}
			continue
		}

		num, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("ugc: invalid zone number %q", tok)
		}
		codes = append(codes, Code{State: currentPrefix, ZoneType: currentType, Number: num})
	}

	return codes, nil
}

func reconstructExpiration(stamp string, reference time.Time) (time.Time, error) {
	if len(stamp) != 6 {
		return time.Time{}, fmt.Errorf("ugc: expiration stamp must be 6 digits, got %q", stamp)
	}
	day, err1 := strconv.Atoi(stamp[0:2])
	hour, err2 := strconv.Atoi(stamp[2:4])
	minute, err3 := strconv.Atoi(stamp[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("ugc: non-numeric expiration stamp %q", stamp)
	}
	if day < 1 || day > 31 || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("ugc: expiration stamp out of range %q", stamp)
	}

	candidate := time.Date(reference.Year(), reference.Month(), day, hour, minute, 0, 0, time.UTC)
	if candidate.Before(reference) {
		candidate = candidate.AddDate(0, 1, 0)
	}
	return candidate, nil
}

// FilterByStates returns only the codes whose state matches one of allowed.
// An empty allowed set passes every code through unchanged.
func FilterByStates(codes []Code, allowed []string) []Code {
	if len(allowed) == 0 {
		return codes
	}
	allow := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		allow[strings.ToUpper(s)] = true
	}
	out := make([]Code, 0, len(codes))
	for _, c := range codes {
		if allow[c.State] {
			out = append(out, c)
		}
	}
	return out
}

// FormatLocationString renders a human display string from a set of codes,
// grouping by state, e.g. "OH: 049, 041, 061, 062; IN: 003". Each code is
// listed on its own; consecutive numbers are not collapsed into ranges.
func FormatLocationString(codes []Code) string {
	order := make([]string, 0)
	byState := make(map[string][]string)
	for _, c := range codes {
		if _, ok := byState[c.State]; !ok {
			order = append(order, c.State)
		}
		byState[c.State] = append(byState[c.State], fmt.Sprintf("%03d", c.Number))
	}
	parts := make([]string, 0, len(order))
	for _, state := range order {
		parts = append(parts, fmt.Sprintf("%s: %s", state, strings.Join(byState[state], ", ")))
	}
	return strings.Join(parts, "; ")
}
