// Package threat extracts the structured severe-weather threat block (the
// "HAZARD...SOURCE...IMPACT" style tags) from raw warning text: tornado
// detection method, damage tiers, wind/hail/snow/ice magnitudes, and storm
// motion.
package threat

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/wx/patterns"
)

var (
	damageThreatRegexps   = make(map[string]*regexp.Regexp)
	damageThreatRegexpsMu sync.Mutex
)

// regexpCache lazily compiles and memoizes the per-hazard damage-threat
// regex built from patterns.DamageThreatTemplate.
func regexpCache(pattern string) *regexp.Regexp {
	damageThreatRegexpsMu.Lock()
	defer damageThreatRegexpsMu.Unlock()
	if re, ok := damageThreatRegexps[pattern]; ok {
		return re
	}
	re := regexp.MustCompile(pattern)
	damageThreatRegexps[pattern] = re
	return re
}

var hailDescriptors = map[string]float64{
	"PEA":         0.25,
	"DIME":        0.5,
	"QUARTER":     1.0,
	"GOLF BALL":   1.75,
	"TENNIS BALL": 2.5,
	"BASEBALL":    2.75,
	"SOFTBALL":    4.0,
}

// cardinal16 is ordered clockwise from north in 22.5-degree steps.
var cardinal16 = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

var cardinalOpposite = map[string]string{
	"N": "S", "NNE": "SSW", "NE": "SW", "ENE": "WSW",
	"E": "W", "ESE": "WNW", "SE": "NW", "SSE": "NNW",
	"S": "N", "SSW": "NNE", "SW": "NE", "WSW": "ENE",
	"W": "E", "WNW": "ESE", "NW": "SE", "NNW": "SSE",
}

// Extract builds a ThreatData from raw warning text. Quantities that parse
// but fall outside a documented reasonable range are dropped, never
// silently truncated to the range boundary; each drop is logged as a
// warning.
func Extract(logger *slog.Logger, text string) domain.ThreatData {
	upper := strings.ToUpper(text)
	var t domain.ThreatData

	if m := patterns.TornadoDetection.FindStringSubmatch(upper); m != nil {
		t.TornadoDetection = m[1]
	}
	t.TornadoDamageThreat = damageThreat(upper, "TORNADO")
	t.WindDamageThreat = damageThreat(upper, "WIND")
	t.HailDamageThreat = damageThreat(upper, "HAIL")
	t.FlashFloodDamageThreat = damageThreat(upper, "FLASH FLOOD")

	if m := patterns.FlashFloodDetection.FindStringSubmatch(upper); m != nil {
		t.FlashFloodDetection = m[1]
	}

	if m := patterns.SustainedWindRange.FindStringSubmatch(upper); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if inRange(lo, 5, 200) && inRange(hi, 5, 200) {
			t.SustainedWindMinMPH = &lo
			t.SustainedWindMaxMPH = &hi
		} else {
			logger.Warn("sustained wind range outside reasonable range", "min_mph", lo, "max_mph", hi)
		}
	}

	if gusts := patterns.WindGust.FindAllStringSubmatch(upper, -1); len(gusts) > 0 {
		max := 0
		for _, g := range gusts {
			v, err := strconv.Atoi(g[1])
			if err != nil {
				continue
			}
			if g[2] == "KT" {
				v = ktsToMph(v)
			}
			if inRange(v, 10, 300) {
				if v > max {
					max = v
				}
			} else {
				logger.Warn("wind gust outside reasonable range", "mph", v)
			}
		}
		if max > 0 {
			t.MaxWindGustMPH = &max
			kts := mphToKts(max)
			t.MaxWindGustKts = &kts
		}
	}

	if m := patterns.HailSizeNumeric.FindStringSubmatch(upper); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if v >= 0.25 && v <= 6.0 {
				t.MaxHailSizeInches = &v
			} else {
				logger.Warn("hail size outside reasonable range", "inches", v)
			}
		}
	} else if size, ok := hailFromDescriptor(upper); ok {
		t.MaxHailSizeInches = &size
	}

	if snow, ok := extractSnow(logger, upper); ok {
		t.SnowAmountMinInches = snow.min
		t.SnowAmountMaxInches = snow.max
	}

	if ice, ok := extractIce(logger, upper); ok {
		t.IceAccumulationInches = &ice
	}

	if motion, ok := extractStormMotion(upper); ok {
		t.StormMotion = &motion
	}

	return t
}

func inRange(v, lo, hi int) bool { return v >= lo && v <= hi }

func damageThreat(upper, hazard string) string {
	re := fmt.Sprintf(patterns.DamageThreatTemplate, hazard)
	m := regexpCache(re).FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return m[1]
}

func hailFromDescriptor(upper string) (float64, bool) {
	for desc, size := range hailDescriptors {
		if strings.Contains(upper, desc+" SIZE HAIL") || strings.Contains(upper, "HAIL...."+desc) {
			return size, true
		}
	}
	return 0, false
}

type snowRange struct {
	min *float64
	max *float64
}

// extractSnow looks for a snow accumulation amount once either "SNOW" or
// "ACCUMULATION" appears somewhere in the text, matching both the
// "SNOW...OF X TO Y INCHES" and reversed "X TO Y INCHES OF SNOW" orderings.
func extractSnow(logger *slog.Logger, upper string) (snowRange, bool) {
	if !strings.Contains(upper, "SNOW") && !strings.Contains(upper, "ACCUMULATION") {
		return snowRange{}, false
	}

	if m := patterns.SnowAmountRange.FindStringSubmatch(upper); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if validSnow(lo) && validSnow(hi) {
			return snowRange{min: &lo, max: &hi}, true
		}
		logger.Warn("snow amount outside reasonable range", "min_inches", lo, "max_inches", hi)
	}
	if m := patterns.SnowAmountRangeTrailing.FindStringSubmatch(upper); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if validSnow(lo) && validSnow(hi) {
			return snowRange{min: &lo, max: &hi}, true
		}
		logger.Warn("snow amount outside reasonable range", "min_inches", lo, "max_inches", hi)
	}
	if m := patterns.SnowAmountSingle.FindStringSubmatch(upper); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if validSnow(v) {
			zero := 0.0
			return snowRange{min: &zero, max: &v}, true
		}
		logger.Warn("snow amount outside reasonable range", "inches", v)
	}
	if m := patterns.SnowAmountAround.FindStringSubmatch(upper); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if validSnow(v) {
			return snowRange{min: &v, max: &v}, true
		}
		logger.Warn("snow amount outside reasonable range", "inches", v)
	}
	return snowRange{}, false
}

func validSnow(v float64) bool { return v >= 0.1 && v <= 60.0 }

func extractIce(logger *slog.Logger, upper string) (float64, bool) {
	if m := patterns.IceAccumulationRange.FindStringSubmatch(upper); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		max := math.Max(lo, hi)
		if validIce(max) {
			return max, true
		}
		logger.Warn("ice accumulation outside reasonable range", "inches", max)
	}
	if m := patterns.IceAccumulationSingle.FindStringSubmatch(upper); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if validIce(v) {
			return v, true
		}
		logger.Warn("ice accumulation outside reasonable range", "inches", v)
	}
	return 0, false
}

func validIce(v float64) bool { return v >= 0.01 && v <= 3.0 }

func extractStormMotion(upper string) (domain.StormMotion, bool) {
	if m := patterns.StormMotionLine.FindStringSubmatch(upper); m != nil {
		deg, err1 := strconv.Atoi(m[2])
		kts, err2 := strconv.Atoi(m[3])
		if err1 == nil && err2 == nil {
			mph := ktsToMph(kts)
			from := cardinalFromDegrees((deg + 180) % 360)
			return domain.StormMotion{
				DirectionDegrees: &deg,
				DirectionFrom:    from,
				SpeedKts:         &kts,
				SpeedMPH:         &mph,
			}, true
		}
	}

	if m := patterns.MovingCardinalLine.FindStringSubmatch(upper); m != nil {
		toward := m[1]
		mph, err := strconv.Atoi(m[2])
		if err == nil {
			from := cardinalOpposite[toward]
			kts := mphToKts(mph)
			return domain.StormMotion{
				DirectionFrom: from,
				SpeedMPH:      &mph,
				SpeedKts:      &kts,
			}, true
		}
	}

	return domain.StormMotion{}, false
}

func cardinalFromDegrees(deg int) string {
	idx := int(math.Round(float64(deg)/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return cardinal16[idx]
}

// mphToKts converts miles per hour to knots, rounded to the nearest knot.
func mphToKts(mph int) int {
	return int(math.Round(float64(mph) * 0.868976))
}

// ktsToMph converts knots to miles per hour, rounded to the nearest mph.
func ktsToMph(kts int) int {
	return int(math.Round(float64(kts) * 1.15078))
}
