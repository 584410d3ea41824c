// Package vtec decodes NWS Valid Time Event Code (P-VTEC) strings, the
// machine-readable line embedded in most watch/warning/advisory products
// that carries the office, phenomenon, significance, and event tracking
// number driving alert identity and lifecycle.
package vtec

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/wx/patterns"
	"github.com/couchcryptid/alertwx/internal/wx/wxtime"
)

// KnownPhenomena is the closed set of 2-letter phenomenon codes the parser
// recognizes. An unrecognized code is not a parse error: the VTEC still
// parses, and the parser logs a warning for it.
var KnownPhenomena = map[string]bool{
	"TO": true, "SV": true, "FF": true, "FA": true, "FL": true, "WS": true,
	"BZ": true, "IS": true, "LE": true, "WW": true, "WC": true, "EC": true,
	"HT": true, "EH": true, "FG": true, "SM": true, "HW": true, "EW": true,
	"WI": true, "DS": true, "FR": true, "FZ": true, "HZ": true, "AS": true,
	"CF": true, "LS": true, "SU": true, "RP": true, "BW": true, "SC": true,
	"SW": true, "RB": true, "SI": true, "GL": true, "SE": true, "SR": true,
	"HF": true, "TR": true, "HU": true, "TY": true, "SS": true, "TS": true,
	"MA": true, "SQ": true, "AF": true, "LO": true, "ZF": true, "ZR": true,
	"UP": true, "ZY": true, "FW": true, "RF": true, "EQ": true, "VO": true,
	"AV": true,
}

// Parse decodes the first P-VTEC string found in text. It returns ok=false
// with no error when no P-VTEC is present at all.
func Parse(logger *slog.Logger, text string) (info domain.VTECInfo, ok bool, err error) {
	m := patterns.PVTEC.FindStringSubmatch(text)
	if m == nil {
		return domain.VTECInfo{}, false, nil
	}
	return parseMatch(logger, m)
}

// ParseAll decodes every P-VTEC string in text, for multi-segment products
// carrying more than one VTEC line.
func ParseAll(logger *slog.Logger, text string) ([]domain.VTECInfo, error) {
	matches := patterns.PVTEC.FindAllStringSubmatch(text, -1)
	infos := make([]domain.VTECInfo, 0, len(matches))
	for _, m := range matches {
		info, ok, err := parseMatch(logger, m)
		if err != nil {
			return nil, err
		}
		if ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func parseMatch(logger *slog.Logger, m []string) (domain.VTECInfo, bool, error) {
	productClass := m[1]
	action := domain.VTECAction(m[2])
	office := m[3]
	phenomenon := m[4]
	significance := domain.AlertSignificance(m[5])
	etnRaw := m[6]
	beginRaw := m[7]
	endRaw := m[8]

	if !domain.ValidVTECActions[action] {
		return domain.VTECInfo{}, false, fmt.Errorf("vtec: invalid action code %q", action)
	}
	if !domain.ValidSignificances[significance] {
		return domain.VTECInfo{}, false, fmt.Errorf("vtec: invalid significance code %q", significance)
	}
	if !KnownPhenomena[phenomenon] {
		logger.Warn("unrecognized VTEC phenomenon code", "phenomenon", phenomenon)
	}

	etn, err := strconv.Atoi(etnRaw)
	if err != nil {
		return domain.VTECInfo{}, false, fmt.Errorf("vtec: invalid event tracking number %q: %w", etnRaw, err)
	}

	begin, beginOK, err := wxtime.ParseVTECTimestamp(logger, beginRaw)
	if err != nil {
		return domain.VTECInfo{}, false, fmt.Errorf("vtec: begin timestamp: %w", err)
	}
	end, endOK, err := wxtime.ParseVTECTimestamp(logger, endRaw)
	if err != nil {
		return domain.VTECInfo{}, false, fmt.Errorf("vtec: end timestamp: %w", err)
	}

	info := domain.VTECInfo{
		ProductClass:        productClass,
		Action:              action,
		Office:              office,
		Phenomenon:          phenomenon,
		Significance:        significance,
		EventTrackingNumber: etn,
		RawVTEC:             m[0],
	}
	if beginOK {
		info.BeginTime = &begin
	}
	if endOK {
		info.EndTime = &end
	}
	return info, true, nil
}

// BuildProductID derives the alert's identity key from a VTEC record.
// Watches omit the office (SPC issues all tornado/severe watches, so the
// office is not discriminating); everything else includes the office with
// its leading "K" stripped.
func BuildProductID(info domain.VTECInfo) string {
	if info.Significance == domain.SignificanceWatch {
		return fmt.Sprintf("%sA.%04d", info.Phenomenon, info.EventTrackingNumber)
	}
	office := info.Office
	if len(office) == 4 && office[0] == 'K' {
		office = office[1:]
	}
	return fmt.Sprintf("%s.%s.%04d", info.Phenomenon, office, info.EventTrackingNumber)
}

// GetPhenomenonName returns the human-readable name for a phenomenon code,
// or a fallback placeholder if unrecognized.
func GetPhenomenonName(names map[string]string, phenomenon string) string {
	if name, ok := names[phenomenon]; ok {
		return name
	}
	return "Unknown (" + phenomenon + ")"
}
