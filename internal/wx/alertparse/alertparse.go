// Package alertparse is the parser façade: it combines the VTEC, UGC, and
// threat decoders into one call that turns a raw NWS text product (or API
// GeoJSON feature) into a domain.Alert, applying the rejection rules and
// identity-assignment cascade that decide whether and how a product becomes
// an alert at all.
package alertparse

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/wx/threat"
	"github.com/couchcryptid/alertwx/internal/wx/ugc"
	"github.com/couchcryptid/alertwx/internal/wx/vtec"
	"github.com/couchcryptid/alertwx/internal/wx/wxtime"
)

// RejectReason names why a raw product did not become an Alert.
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectInformationalHdr  RejectReason = "informational_header"
	RejectIrrelevantSPS     RejectReason = "irrelevant_sps"
	RejectNoAffectedAreas   RejectReason = "no_affected_areas"
	RejectPhenomenonFilter  RejectReason = "phenomenon_filter"
)

// informationalTTAAIIPrefixes name WMO header prefixes that are always
// informational, never actionable alerts.
var informationalTTAAIIPrefixes = []string{"FLUS", "NOUS", "FPUS"}

// spsExcludedKeywords disqualify an SPS (Special Weather Statement) even
// when thunderstorm language is also present, matching upstream's
// excluded-topics rule.
var spsExcludedKeywords = regexp.MustCompile(`(?i)\b(FIRE|SMOKE|FOG|HEAT|RIP CURRENT|BEACH|MARINE|AIR QUALITY|DUST)\b`)

var spsThunderstormKeywords = regexp.MustCompile(`(?i)THUNDERSTORM`)

// targetedPhenomena are short-lived event types that default to a 60-minute
// expiration when the product carries no explicit one.
var targetedPhenomena = map[string]bool{
	"TO": true, "SV": true, "FF": true, "SS": true, "SPS": true,
}

// RawProduct is the parser façade's input: either an NWWS text bulletin or
// an NWS API GeoJSON alert feature, normalized to a common shape.
type RawProduct struct {
	Text            string
	MessageID       string
	AWIPSID         string // e.g. "SPSTOP"; first 3 chars are the product category
	TTAAII          string
	Office          string
	Source          string // "nwws" | "api"
	ParsedAt        time.Time
	GeoJSONGeometry map[string]any
	FilterStates    []string
	TargetPhenomena []string
}

// category returns the 3-letter AWIPS product category (NNN of NNNXXX).
func (r RawProduct) category() string {
	if len(r.AWIPSID) < 3 {
		return r.AWIPSID
	}
	return r.AWIPSID[:3]
}

// Result is a successfully parsed alert plus the VTEC records it carried,
// for callers that need the raw VTEC segments (e.g. to detect cancellation).
type Result struct {
	Alert domain.Alert
	VTECs []domain.VTECInfo
}

// Parse runs the full façade over one raw product. ok=false with a non-empty
// reason means the product was deliberately rejected, not an error.
func Parse(logger *slog.Logger, raw RawProduct) (res Result, ok bool, reason RejectReason, err error) {
	if isInformationalHeader(raw) {
		return Result{}, false, RejectInformationalHdr, nil
	}

	if raw.category() == "SPS" && !isRelevantSPS(raw.Text) {
		return Result{}, false, RejectIrrelevantSPS, nil
	}

	vtecs, err := vtec.ParseAll(logger, raw.Text)
	if err != nil {
		return Result{}, false, RejectNone, fmt.Errorf("alertparse: vtec: %w", err)
	}

	ugcLine, ugcErr := findUGCLine(raw.Text)
	var areas []ugc.Code
	if ugcErr == nil {
		parsed, err := ugc.ParseLine(logger, ugcLine, raw.ParsedAt)
		if err != nil {
			logger.Warn("failed to parse UGC line", "err", err)
		} else {
			areas = parsed.Codes
		}
	}
	areas = ugc.FilterByStates(areas, raw.FilterStates)
	if ugcErr == nil && len(areas) == 0 {
		return Result{}, false, RejectNoAffectedAreas, nil
	}

	phenomenon, significance := phenomenonAndSignificance(raw.Text, vtecs)
	if len(raw.TargetPhenomena) > 0 && !containsFold(raw.TargetPhenomena, phenomenon) {
		return Result{}, false, RejectPhenomenonFilter, nil
	}

	productID := assignProductID(raw, vtecs, areas)

	th := threat.Extract(logger, raw.Text)

	polygon, centroid := extractPolygon(raw)

	alert := domain.Alert{
		ProductID:        productID,
		MessageID:        raw.MessageID,
		Source:           raw.Source,
		Phenomenon:       phenomenon,
		Significance:     significance,
		ParsedAt:         raw.ParsedAt,
		LastUpdated:      raw.ParsedAt,
		AffectedAreas:    codeStrings(areas),
		FIPSCodes:        fipsCodes(areas),
		DisplayLocations: ugc.FormatLocationString(areas),
		Polygon:          polygon,
		Centroid:         centroid,
		SenderOffice:     raw.Office,
		RawText:          raw.Text,
		Threat:           th,
		Status:           domain.StatusActive,
	}
	if len(vtecs) > 0 {
		v := vtecs[0]
		alert.VTEC = &v
		alert.IssuedTime = v.BeginTime
		alert.EffectiveTime = v.BeginTime
		alert.ExpirationTime = v.EndTime
	}
	if alert.IssuedTime == nil {
		alert.IssuedTime = &raw.ParsedAt
	}
	if alert.ExpirationTime == nil && targetedPhenomena[phenomenon] {
		exp := raw.ParsedAt.Add(60 * time.Minute)
		alert.ExpirationTime = &exp
	}

	alert.Derive()

	return Result{Alert: alert, VTECs: vtecs}, true, RejectNone, nil
}

func isInformationalHeader(raw RawProduct) bool {
	if strings.ToUpper(raw.category()) == "HWO" {
		return true
	}
	if strings.Contains(strings.ToUpper(raw.Text), "HAZARDOUS WEATHER OUTLOOK") {
		return true
	}
	ttaaii := strings.ToUpper(raw.TTAAII)
	for _, prefix := range informationalTTAAIIPrefixes {
		if strings.HasPrefix(ttaaii, prefix) {
			return true
		}
	}
	return false
}

func isRelevantSPS(text string) bool {
	if spsExcludedKeywords.MatchString(text) {
		return false
	}
	return spsThunderstormKeywords.MatchString(text)
}

var ugcLineFinder = regexp.MustCompile(`(?m)^[A-Z]{2}[CZ][\d>]*(?:-(?:[A-Z]{2}[CZ])?[\d>]+)*-\d{6}-$`)

func findUGCLine(text string) (string, error) {
	if m := ugcLineFinder.FindString(text); m != "" {
		return m, nil
	}
	return "", fmt.Errorf("alertparse: no UGC line found")
}

func phenomenonAndSignificance(text string, vtecs []domain.VTECInfo) (string, domain.AlertSignificance) {
	if len(vtecs) > 0 {
		return vtecs[0].Phenomenon, vtecs[0].Significance
	}
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "TORNADO WATCH"):
		return "TO", domain.SignificanceWatch
	case strings.Contains(upper, "SEVERE THUNDERSTORM WATCH"):
		return "SV", domain.SignificanceWatch
	case strings.Contains(upper, "SPECIAL WEATHER STATEMENT"):
		return "SPS", domain.SignificanceStatement
	default:
		return "UNK", domain.SignificanceNone
	}
}

var watchNumberPattern = regexp.MustCompile(`WATCH (?:NUMBER|NO\.?)\s*(\d+)`)

func assignProductID(raw RawProduct, vtecs []domain.VTECInfo, areas []ugc.Code) string {
	if len(vtecs) > 0 {
		return vtec.BuildProductID(vtecs[0])
	}

	upper := strings.ToUpper(raw.Text)
	if m := watchNumberPattern.FindStringSubmatch(upper); m != nil {
		n, _ := strconv.Atoi(m[1])
		prefix := "SV"
		if strings.Contains(upper, "TORNADO WATCH") {
			prefix = "TO"
		}
		return fmt.Sprintf("%sA.SPC.%04d", prefix, n)
	}

	if raw.category() == "SPS" {
		return buildSPSHash(raw.ParsedAt, areas)
	}

	if raw.MessageID != "" {
		id := raw.MessageID
		if i := strings.LastIndex(id, "/"); i >= 0 {
			id = id[i+1:]
		}
		if id != "" {
			return id
		}
	}

	return fmt.Sprintf("ADHOC.%d", raw.ParsedAt.Unix())
}

func buildSPSHash(parsedAt time.Time, areas []ugc.Code) string {
	codes := codeStrings(areas)
	sort.Strings(codes)
	sum := sha1.Sum([]byte(strings.Join(codes, ",")))
	return fmt.Sprintf("SPS.adhoc.%s.%s", parsedAt.Format("200601021504"), hex.EncodeToString(sum[:])[:8])
}

func codeStrings(codes []ugc.Code) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.String()
	}
	return out
}

func fipsCodes(codes []ugc.Code) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if f := c.FIPS(); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsFold(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

var latLonLine = regexp.MustCompile(`LAT\.\.\.LON((?:\s+\d{4,5}){6,})`)

// extractPolygon pulls a warning polygon either from the GeoJSON geometry
// attached to an API product, or from the LAT...LON text block embedded in
// an NWWS bulletin.
func extractPolygon(raw RawProduct) ([][][2]float64, *[2]float64) {
	if raw.GeoJSONGeometry != nil {
		if ring, ok := polygonFromGeoJSON(raw.GeoJSONGeometry); ok {
			return [][][2]float64{ring}, centroidOf(ring)
		}
	}

	m := latLonLine.FindStringSubmatch(raw.Text)
	if m == nil {
		return nil, nil
	}
	fields := strings.Fields(m[1])
	if len(fields)%2 != 0 || len(fields) < 6 {
		return nil, nil
	}

	var ring [][2]float64
	for i := 0; i+1 < len(fields); i += 2 {
		latHundredths, err1 := strconv.Atoi(fields[i])
		lonHundredths, err2 := strconv.Atoi(fields[i+1])
		if err1 != nil || err2 != nil {
			return nil, nil
		}
		lat := float64(latHundredths) / 100.0
		lon := -float64(lonHundredths) / 100.0
		if lat < 20 || lat > 60 || lon < -130 || lon > -60 {
			continue
		}
		ring = append(ring, [2]float64{lat, lon})
	}
	if len(ring) < 3 {
		return nil, nil
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return [][][2]float64{ring}, centroidOf(ring)
}

func polygonFromGeoJSON(geom map[string]any) ([][2]float64, bool) {
	gtype, _ := geom["type"].(string)
	coords, _ := geom["coordinates"].([]any)
	if coords == nil {
		return nil, false
	}

	var rawRing []any
	switch gtype {
	case "Polygon":
		if len(coords) == 0 {
			return nil, false
		}
		rawRing, _ = coords[0].([]any)
	case "MultiPolygon":
		if len(coords) == 0 {
			return nil, false
		}
		firstPoly, _ := coords[0].([]any)
		if len(firstPoly) == 0 {
			return nil, false
		}
		rawRing, _ = firstPoly[0].([]any)
	default:
		return nil, false
	}

	ring := make([][2]float64, 0, len(rawRing))
	for _, p := range rawRing {
		pair, _ := p.([]any)
		if len(pair) != 2 {
			return nil, false
		}
		lon, ok1 := toFloat(pair[0])
		lat, ok2 := toFloat(pair[1])
		if !ok1 || !ok2 {
			return nil, false
		}
		ring = append(ring, [2]float64{lat, lon})
	}
	if len(ring) < 3 {
		return nil, false
	}
	return ring, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func centroidOf(ring [][2]float64) *[2]float64 {
	if len(ring) == 0 {
		return nil
	}
	var sumLat, sumLon float64
	for _, p := range ring {
		sumLat += p[0]
		sumLon += p[1]
	}
	c := [2]float64{sumLat / float64(len(ring)), sumLon / float64(len(ring))}
	return &c
}
