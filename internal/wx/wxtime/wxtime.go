// Package wxtime parses the several timestamp dialects that show up in raw
// NWS text products: VTEC's fixed yymmddThhmmZ, ISO 8601, and the free-text
// "339 PM CDT Mon Aug 8 2022" style line that precedes most bulletins. It
// never silently defaults an unrecognized timezone abbreviation to UTC
// without logging, matching the parsing discipline the rest of the wx
// packages follow.
package wxtime

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/alertwx/internal/wx/patterns"
)

// TimezoneAbbreviations maps the US timezone abbreviations seen in NWS
// products to fixed UTC offsets. Deliberately not DST-aware: the
// abbreviation itself (EST vs EDT) already encodes daylight state.
var TimezoneAbbreviations = map[string]*time.Location{
	"EST": time.FixedZone("EST", -5*3600),
	"EDT": time.FixedZone("EDT", -4*3600),
	"ET":  time.FixedZone("ET", -5*3600),

	"CST": time.FixedZone("CST", -6*3600),
	"CDT": time.FixedZone("CDT", -5*3600),
	"CT":  time.FixedZone("CT", -6*3600),

	"MST": time.FixedZone("MST", -7*3600),
	"MDT": time.FixedZone("MDT", -6*3600),
	"MT":  time.FixedZone("MT", -7*3600),

	"PST": time.FixedZone("PST", -8*3600),
	"PDT": time.FixedZone("PDT", -7*3600),
	"PT":  time.FixedZone("PT", -8*3600),

	"AKST": time.FixedZone("AKST", -9*3600),
	"AKDT": time.FixedZone("AKDT", -8*3600),
	"AKT":  time.FixedZone("AKT", -9*3600),

	"HST":  time.FixedZone("HST", -10*3600),
	"HDT":  time.FixedZone("HDT", -9*3600),
	"HAST": time.FixedZone("HAST", -10*3600),
	"HADT": time.FixedZone("HADT", -9*3600),

	"AST": time.FixedZone("AST", -4*3600),
	"ADT": time.FixedZone("ADT", -3*3600),

	"CHST": time.FixedZone("ChST", 10*3600),

	"SST": time.FixedZone("SST", -11*3600),

	"UTC": time.UTC,
	"GMT": time.UTC,
	"Z":   time.UTC,
}

// WFOTimezones maps a 3-letter Weather Forecast Office identifier to its
// IANA timezone name, ported verbatim from the upstream office roster.
var WFOTimezones = map[string]string{
	"CLE": "America/New_York", "ILN": "America/New_York", "PBZ": "America/New_York",
	"RLX": "America/New_York", "BUF": "America/New_York", "BGM": "America/New_York",
	"ALY": "America/New_York", "OKX": "America/New_York", "PHI": "America/New_York",
	"LWX": "America/New_York", "RNK": "America/New_York", "AKQ": "America/New_York",
	"MHX": "America/New_York", "RAH": "America/New_York", "ILM": "America/New_York",
	"CAE": "America/New_York", "CHS": "America/New_York", "GSP": "America/New_York",
	"FFC": "America/New_York", "JAX": "America/New_York", "MLB": "America/New_York",
	"MFL": "America/New_York", "TBW": "America/New_York", "TAE": "America/New_York",
	"CAR": "America/New_York", "GYX": "America/New_York", "BOX": "America/New_York",
	"MRX": "America/New_York", "LMK": "America/New_York", "JKL": "America/New_York",

	"HUN": "America/Chicago", "BMX": "America/Chicago", "MOB": "America/Chicago",
	"JAN": "America/Chicago", "MEG": "America/Chicago", "OHX": "America/Chicago",
	"PAH": "America/Chicago",

	"IWX": "America/Indiana/Indianapolis", "IND": "America/Indiana/Indianapolis",
	"LOT": "America/Chicago", "ILX": "America/Chicago", "DVN": "America/Chicago",
	"DMX": "America/Chicago", "ARX": "America/Chicago", "MKX": "America/Chicago",
	"GRB": "America/Chicago", "MPX": "America/Chicago", "DLH": "America/Chicago",
	"FGF": "America/Chicago", "BIS": "America/Chicago", "ABR": "America/Chicago",
	"FSD": "America/Chicago", "UNR": "America/Denver", "OAX": "America/Chicago",
	"GID": "America/Chicago", "LBF": "America/Chicago", "CYS": "America/Denver",
	"TOP": "America/Chicago", "ICT": "America/Chicago", "DDC": "America/Chicago",
	"GLD": "America/Chicago", "OUN": "America/Chicago", "TSA": "America/Chicago",
	"SHV": "America/Chicago", "LCH": "America/Chicago", "LIX": "America/Chicago",
	"FWD": "America/Chicago", "EWX": "America/Chicago", "HGX": "America/Chicago",
	"CRP": "America/Chicago", "BRO": "America/Chicago", "SJT": "America/Chicago",
	"MAF": "America/Chicago", "LUB": "America/Chicago", "AMA": "America/Chicago",
	"SGF": "America/Chicago", "LSX": "America/Chicago", "EAX": "America/Chicago",
	"LZK": "America/Chicago",

	"BOU": "America/Denver", "GJT": "America/Denver", "PUB": "America/Denver",
	"ABQ": "America/Denver", "EPZ": "America/Denver", "PHX": "America/Phoenix",
	"FGZ": "America/Phoenix", "TWC": "America/Phoenix", "SLC": "America/Denver",
	"RIW": "America/Denver", "BYZ": "America/Denver", "TFX": "America/Denver",
	"MSO": "America/Denver", "GGW": "America/Denver", "PIH": "America/Boise",
	"BOI": "America/Boise", "LKN": "America/Los_Angeles", "VEF": "America/Los_Angeles",
	"REV": "America/Los_Angeles",

	"SEW": "America/Los_Angeles", "OTX": "America/Los_Angeles", "PDT": "America/Los_Angeles",
	"PQR": "America/Los_Angeles", "MFR": "America/Los_Angeles", "EKA": "America/Los_Angeles",
	"STO": "America/Los_Angeles", "MTR": "America/Los_Angeles", "HNX": "America/Los_Angeles",
	"LOX": "America/Los_Angeles", "SGX": "America/Los_Angeles",

	"AFC": "America/Anchorage", "AFG": "America/Anchorage", "AJK": "America/Juneau",

	"HFO": "Pacific/Honolulu", "GUM": "Pacific/Guam", "PPG": "Pacific/Pago_Pago",

	"SJU": "America/Puerto_Rico",
}

// ParseTimezoneAbbreviation resolves a 2-4 letter abbreviation to a
// *time.Location, logging and returning nil if unrecognized rather than
// silently assuming UTC.
func ParseTimezoneAbbreviation(logger *slog.Logger, abbrev string) *time.Location {
	if abbrev == "" {
		logger.Warn("empty timezone abbreviation")
		return nil
	}
	if loc, ok := TimezoneAbbreviations[strings.ToUpper(strings.TrimSpace(abbrev))]; ok {
		return loc
	}
	logger.Warn("unrecognized timezone abbreviation", "abbrev", abbrev)
	return nil
}

// TimezoneForWFO resolves a Weather Forecast Office code (with or without
// the leading "K") to an IANA timezone name.
func TimezoneForWFO(logger *slog.Logger, wfoCode string) (*time.Location, error) {
	clean := strings.ToUpper(strings.TrimSpace(wfoCode))
	if len(clean) == 4 && strings.HasPrefix(clean, "K") {
		clean = clean[1:]
	}
	name, ok := WFOTimezones[clean]
	if !ok {
		logger.Warn("unrecognized WFO code", "wfo", wfoCode)
		return nil, fmt.Errorf("wxtime: unrecognized WFO code %q", wfoCode)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("wxtime: loading IANA zone %q: %w", name, err)
	}
	return loc, nil
}

// ParseVTECTimestamp parses the fixed yymmddThhmmZ VTEC timestamp form. A
// leading "0000" denotes an undefined time and returns ok=false with no
// error. Years resolving before 1971 are rejected as invalid (a recurring
// upstream encoding bug).
func ParseVTECTimestamp(logger *slog.Logger, raw string) (t time.Time, ok bool, err error) {
	if raw == "" {
		return time.Time{}, false, nil
	}
	if strings.HasPrefix(raw, "0000") {
		logger.Debug("vtec timestamp undefined", "raw", raw)
		return time.Time{}, false, nil
	}

	clean := strings.TrimSuffix(strings.TrimSpace(raw), "Z")
	if len(clean) != 11 || clean[6] != 'T' {
		return time.Time{}, false, fmt.Errorf("wxtime: malformed VTEC timestamp %q", raw)
	}

	yy, err1 := strconv.Atoi(clean[0:2])
	mm, err2 := strconv.Atoi(clean[2:4])
	dd, err3 := strconv.Atoi(clean[4:6])
	hh, err4 := strconv.Atoi(clean[7:9])
	nn, err5 := strconv.Atoi(clean[9:11])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return time.Time{}, false, fmt.Errorf("wxtime: non-numeric VTEC timestamp %q", raw)
	}

	year := 2000 + yy
	if yy >= 70 {
		year = 1900 + yy
	}

	if mm < 1 || mm > 12 {
		return time.Time{}, false, fmt.Errorf("wxtime: invalid month %d in %q", mm, raw)
	}
	if dd < 1 || dd > 31 {
		return time.Time{}, false, fmt.Errorf("wxtime: invalid day %d in %q", dd, raw)
	}
	if hh < 0 || hh > 23 {
		return time.Time{}, false, fmt.Errorf("wxtime: invalid hour %d in %q", hh, raw)
	}
	if nn < 0 || nn > 59 {
		return time.Time{}, false, fmt.Errorf("wxtime: invalid minute %d in %q", nn, raw)
	}

	dt := time.Date(year, time.Month(mm), dd, hh, nn, 0, 0, time.UTC)
	if dt.Year() < 1971 {
		return time.Time{}, false, fmt.Errorf("wxtime: VTEC timestamp year %d predates 1971: %q", dt.Year(), raw)
	}
	return dt, true, nil
}

// ParseISOTimestamp parses an RFC 3339 / ISO 8601 timestamp, trying a short
// list of fallback layouts the way upstream products sometimes format them.
func ParseISOTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("wxtime: empty ISO timestamp")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	layouts := []string{
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if t.Location() == time.UTC || t.Location().String() == "" {
				return t.UTC(), nil
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("wxtime: unrecognized ISO timestamp %q", raw)
}

// ParseNWWSTimestamp extracts a free-text issuance timestamp like
// "339 PM CDT Mon Aug 8 2022" from raw product text.
func ParseNWWSTimestamp(logger *slog.Logger, text string) (time.Time, bool) {
	m := patterns.IssuedTimeLine.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	timeVal, amPm, tz, _, monthName, dayNum, year := m[1], m[2], m[3], m[4], m[5], m[6], m[7]
	if len(timeVal) == 3 {
		timeVal = "0" + timeVal
	}

	layout := "0304 PM Jan 2 2006"
	ts := fmt.Sprintf("%s %s %s %s %s", timeVal, amPm, monthName, dayNum, year)
	naive, err := time.Parse(layout, ts)
	if err != nil {
		logger.Warn("failed to parse NWWS timestamp", "raw", m[0], "err", err)
		return time.Time{}, false
	}

	loc := ParseTimezoneAbbreviation(logger, tz)
	if loc == nil {
		logger.Warn("could not parse timezone from NWWS timestamp, using UTC", "tz", tz)
		loc = time.UTC
	}

	local := time.Date(naive.Year(), naive.Month(), naive.Day(), naive.Hour(), naive.Minute(), 0, 0, loc)
	return local, true
}

// ParseTextTime parses a bare "530", "1145" style clock value with optional
// AM/PM and timezone, rolling over to the following day if the resulting
// time in the given reference's timezone already fell in the past.
func ParseTextTime(logger *slog.Logger, timeStr, amPm, tzAbbrev string, reference time.Time) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, fmt.Errorf("wxtime: empty time string")
	}
	ts := strings.TrimSpace(timeStr)
	for len(ts) < 4 {
		ts = "0" + ts
	}
	if len(ts) > 4 {
		logger.Warn("unusual time string length", "raw", timeStr)
		ts = ts[:4]
	}

	hour, err := strconv.Atoi(ts[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("wxtime: invalid hour in %q: %w", timeStr, err)
	}
	minute, err := strconv.Atoi(ts[2:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("wxtime: invalid minute in %q: %w", timeStr, err)
	}
	if amPm != "" {
		if hour < 1 || hour > 12 {
			return time.Time{}, fmt.Errorf("wxtime: invalid 12-hour value %d", hour)
		}
	} else if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("wxtime: invalid hour value %d", hour)
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("wxtime: invalid minute value %d", minute)
	}

	switch strings.ToUpper(amPm) {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}

	loc := time.UTC
	if tzAbbrev != "" {
		if parsed := ParseTimezoneAbbreviation(logger, tzAbbrev); parsed != nil {
			loc = parsed
		} else {
			logger.Warn("could not parse timezone, using UTC as fallback", "tz", tzAbbrev)
		}
	}

	base := reference.In(loc)
	result := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, loc)
	if result.Before(reference.In(loc)) {
		result = result.Add(24 * time.Hour)
	}
	return result, nil
}
