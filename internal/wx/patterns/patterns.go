// Package patterns holds every precompiled regular expression shared by the
// wx parsers. Centralizing them here means each parser package states its
// grammar once and compiles it at init time rather than on every call.
package patterns

import "regexp"

var (
	// PVTEC matches a full P-VTEC line, e.g.
	// "/O.NEW.KTOP.TO.W.0123.250731T1800Z-250731T1900Z/"
	PVTEC = regexp.MustCompile(`/([OTX])\.([A-Z]{3})\.([A-Z]{4})\.([A-Z]{2})\.([WAYSONF])\.(\d{4})\.(\d{6}T\d{4}Z|\d{8})-(\d{6}T\d{4}Z|\d{8})/`)

	// UGCLine matches a single UGC header line, e.g. "OHC049-041-061>065-201530-"
	// or a multi-state line like "OHC049-INC001-201530-". The body (group 1)
	// is re-tokenized by the ugc package, which re-detects each token's own
	// state+zonetype prefix; this only needs to separate the area-code body
	// (allowing it to carry more than one such prefix) from the trailing
	// 6-digit expiration stamp.
	UGCLine = regexp.MustCompile(`^([A-Z]{2}[CZ][\d>]*(?:-(?:[A-Z]{2}[CZ])?[\d>]+)*)-(\d{6})-$`)

	// UGCContinuation matches a pure digit-and-dash continuation line with no
	// new state/zone-type prefix (alert text may wrap a UGC string).
	UGCContinuation = regexp.MustCompile(`^[\d\->]+-?$`)

	// UGCPrefix captures the leading "SSZ" or "SSC" state+type prefix of a UGC token.
	UGCPrefix = regexp.MustCompile(`^([A-Z]{2}[CZ])(.*)`)

	// IssuedTimeLine matches the free-text NWWS issuance timestamp, e.g.
	// "339 PM CDT Mon Aug 8 2022".
	IssuedTimeLine = regexp.MustCompile(`(\d{3,4})\s+(AM|PM)\s+([A-Za-z]{2,4})\s+(\w{3})\s+(\w{3})\s+(\d{1,2})\s+(\d{4})`)

	// StormMotionLine matches "TIME...MOT...LOC 1815Z 245DEG 35KT".
	StormMotionLine = regexp.MustCompile(`TIME\.\.\.MOT\.\.\.LOC\s+(\d{4})Z\s+(\d{1,3})DEG\s+(\d{1,3})KT`)

	// MovingCardinalLine matches "MOVING NE AT 25 MPH".
	MovingCardinalLine = regexp.MustCompile(`MOVING\s+([NSEW]{1,2})\s+AT\s+(\d{1,3})\s*MPH`)

	// TornadoDetection matches the three canonical detection phrases.
	TornadoDetection = regexp.MustCompile(`TORNADO\.\.\.(RADAR INDICATED|OBSERVED|POSSIBLE)`)

	// DamageThreatTemplate is the format string for a pattern matching
	// "...DAMAGE THREAT...CONSIDERABLE" style lines; callers substitute the
	// hazard name and compile the result.
	DamageThreatTemplate = `%s DAMAGE THREAT\.\.\.(CONSIDERABLE|DESTRUCTIVE|CATASTROPHIC)`

	// FlashFloodDetection matches "FLASH FLOOD...RADAR INDICATED" style lines.
	FlashFloodDetection = regexp.MustCompile(`FLASH FLOOD\.\.\.(RADAR INDICATED|OBSERVED|EMERGENCY)`)

	// SustainedWindRange matches "WIND...60 TO 70 MPH" (distinct from a gust line).
	SustainedWindRange = regexp.MustCompile(`WIND\.\.\.(\d{1,3})\s+TO\s+(\d{1,3})\s+MPH`)

	// WindGust matches "WIND GUST...70 MPH", "WIND GUSTS...70 MPH",
	// "GUSTS TO 60 MPH" or "GUSTS UP TO 60 MPH", in MPH or knots
	// ("GUSTS TO 60 KT"); a number followed by "GUSTS" is not matched. Group 2 carries the unit
	// so callers can convert to MPH before comparing magnitudes.
	WindGust = regexp.MustCompile(`(?:WIND GUST(?:S)?\.\.\.|GUSTS? (?:UP )?TO\s+)(\d{1,3})\s*(MPH|KT)`)

	// HailSizeNumeric matches "HAIL...1.75 IN" or "QUARTER SIZE HAIL...1.00 INCH".
	HailSizeNumeric = regexp.MustCompile(`HAIL\.\.\.(\d+(?:\.\d+)?)\s*IN(?:CH(?:ES)?)?`)

	// SnowAmountRange matches "SNOW ACCUMULATIONS OF 4 TO 8 INCHES" or the
	// unprefixed "TOTAL ACCUMULATIONS OF 4 TO 8 INCHES" form.
	SnowAmountRange = regexp.MustCompile(`(?:SNOW|ACCUMULATION)[A-Z ]*\sOF\s+(\d+(?:\.\d+)?)\s+TO\s+(\d+(?:\.\d+)?)\s+INCH(?:ES)?`)

	// SnowAmountRangeTrailing matches the reversed "4 TO 8 INCHES OF SNOW" form.
	SnowAmountRangeTrailing = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+TO\s+(\d+(?:\.\d+)?)\s+INCH(?:ES)?\s+OF\s+SNOW`)

	// SnowAmountSingle matches "SNOW ACCUMULATIONS OF UP TO 3 INCHES".
	SnowAmountSingle = regexp.MustCompile(`SNOW[A-Z ]*\sOF\s+UP TO\s+(\d+(?:\.\d+)?)\s+INCH(?:ES)?`)

	// SnowAmountAround matches "AROUND 6 INCHES OF SNOW".
	SnowAmountAround = regexp.MustCompile(`AROUND\s+(\d+(?:\.\d+)?)\s+INCH(?:ES)?\s+OF SNOW`)

	// IceAccumulationRange matches "ICE ACCUMULATIONS OF 0.1 TO 0.25 INCH".
	IceAccumulationRange = regexp.MustCompile(`ICE ACCUMULATION[A-Z ]*\sOF\s+(\d+(?:\.\d+)?)\s+TO\s+(\d+(?:\.\d+)?)\s+INCH`)

	// IceAccumulationSingle matches "ICE ACCUMULATIONS OF UP TO 0.25 INCH"
	// or "ICE ACCUMULATIONS OF 0.25 INCH"; amounts written in words are not matched.
	IceAccumulationSingle = regexp.MustCompile(`ICE ACCUMULATION[A-Z ]*\sOF\s+(?:UP TO\s+)?(\d+(?:\.\d+)?)\s+INCH`)
)
