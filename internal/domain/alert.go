package domain

import (
	"sort"
	"strings"
	"time"
)

// AlertStatus is the lifecycle state of an Alert.
type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusExpired   AlertStatus = "expired"
	StatusCancelled AlertStatus = "cancelled"
	StatusUpdated   AlertStatus = "updated"
)

// AlertSignificance is the VTEC significance code.
type AlertSignificance string

const (
	SignificanceWarning   AlertSignificance = "W"
	SignificanceWatch     AlertSignificance = "A"
	SignificanceAdvisory  AlertSignificance = "Y"
	SignificanceStatement AlertSignificance = "S"
	SignificanceOutlook   AlertSignificance = "O"
	SignificanceNone      AlertSignificance = "N"
	SignificanceForecast  AlertSignificance = "F"
)

// ValidSignificances is the closed set of legal VTEC significance codes.
var ValidSignificances = map[AlertSignificance]bool{
	SignificanceWarning: true, SignificanceWatch: true, SignificanceAdvisory: true,
	SignificanceStatement: true, SignificanceOutlook: true, SignificanceNone: true,
	SignificanceForecast: true,
}

// VTECAction is the VTEC action code.
type VTECAction string

const (
	ActionNew     VTECAction = "NEW"
	ActionCon     VTECAction = "CON"
	ActionExt     VTECAction = "EXT"
	ActionExa     VTECAction = "EXA"
	ActionExb     VTECAction = "EXB"
	ActionUpg     VTECAction = "UPG"
	ActionCan     VTECAction = "CAN"
	ActionExp     VTECAction = "EXP"
	ActionCor     VTECAction = "COR"
	ActionRou     VTECAction = "ROU"
)

// ValidVTECActions is the closed set of legal VTEC action codes.
var ValidVTECActions = map[VTECAction]bool{
	ActionNew: true, ActionCon: true, ActionExt: true, ActionExa: true,
	ActionExb: true, ActionUpg: true, ActionCan: true, ActionExp: true,
	ActionCor: true, ActionRou: true,
}

// terminatingActions cancel or expire an event outright.
var terminatingActions = map[VTECAction]bool{ActionCan: true, ActionExp: true}

// updatingActions continue or revise an existing event.
var updatingActions = map[VTECAction]bool{
	ActionCon: true, ActionExt: true, ActionExa: true,
	ActionExb: true, ActionUpg: true, ActionCor: true,
}

// IsTerminating reports whether the action cancels or expires the event.
func (a VTECAction) IsTerminating() bool { return terminatingActions[a] }

// IsUpdating reports whether the action continues/revises an existing event.
func (a VTECAction) IsUpdating() bool { return updatingActions[a] }

// IsNew reports whether the action starts a new event.
func (a VTECAction) IsNew() bool { return a == ActionNew }

// PHENOMENON_NAMES maps 2-letter phenomenon codes to their human-readable name.
var PHENOMENON_NAMES = map[string]string{
	"TO": "Tornado", "SV": "Severe Thunderstorm", "FF": "Flash Flood",
	"FA": "Areal Flood", "FL": "Flood", "WS": "Winter Storm", "BZ": "Blizzard",
	"IS": "Ice Storm", "LE": "Lake Effect Snow", "WW": "Winter Weather",
	"WC": "Wind Chill", "EC": "Extreme Cold", "HT": "Heat", "EH": "Excessive Heat",
	"FG": "Dense Fog", "SM": "Dense Smoke", "HW": "High Wind", "EW": "Extreme Wind",
	"WI": "Wind", "DS": "Dust Storm", "FR": "Frost", "FZ": "Freeze",
	"HZ": "Hard Freeze", "AS": "Air Stagnation", "CF": "Coastal Flood",
	"LS": "Lakeshore Flood", "SU": "High Surf", "RP": "Rip Current",
	"BW": "Brisk Wind", "SC": "Small Craft Advisory", "SW": "Small Craft Advisory - Winds",
	"RB": "Small Craft Advisory - Rough Bar", "SI": "Small Craft Advisory - Hazardous Seas",
	"GL": "Gale", "SE": "Hazardous Seas", "SR": "Storm", "HF": "Hurricane Force Wind",
	"TR": "Tropical Storm", "HU": "Hurricane", "TY": "Typhoon", "SS": "Storm Surge",
	"TS": "Tsunami", "MA": "Marine", "SQ": "Snow Squall", "AF": "Ashfall",
	"LO": "Low Water", "ZF": "Freezing Fog", "ZR": "Freezing Rain", "UP": "Ice Accretion",
	"ZY": "Freezing Spray", "FW": "Fire Weather", "RF": "Rainfall", "EQ": "Earthquake",
	"VO": "Volcano", "AV": "Avalanche", "SPS": "Special Weather Statement",
}

// PHENOMENON_PRIORITIES maps phenomenon codes to a base priority used when
// deriving Alert.Priority. Lower numbers sort first (more urgent).
var PHENOMENON_PRIORITIES = map[string]int{
	"TO": 1, "FF": 2, "SV": 3, "TS": 4, "HU": 5, "TY": 6, "EW": 7,
	"BZ": 10, "IS": 11, "FL": 12, "WS": 15, "HW": 16, "SS": 17,
	"CF": 18, "LS": 19, "SQ": 20, "FA": 21, "LE": 25, "WW": 30,
	"ZR": 31, "FZ": 32, "HZ": 33, "WC": 34, "EC": 35, "EH": 36, "HT": 37,
	"SPS": 40, "FG": 45, "SM": 46, "DS": 47,
}

const defaultPhenomenonPriority = 99

// priorityForSignificance nudges priority within a phenomenon: warnings
// outrank watches/advisories/statements for the same phenomenon.
func priorityForSignificance(sig AlertSignificance) int {
	switch sig {
	case SignificanceWarning:
		return 0
	case SignificanceWatch:
		return 1
	case SignificanceAdvisory:
		return 2
	case SignificanceStatement:
		return 3
	default:
		return 4
	}
}

// VTECInfo is the parsed contents of a P-VTEC string.
type VTECInfo struct {
	ProductClass         string
	Action               VTECAction
	Office               string
	Phenomenon           string
	Significance         AlertSignificance
	EventTrackingNumber  int
	BeginTime            *time.Time
	EndTime              *time.Time
	RawVTEC              string
}

// IsCancellation reports whether this VTEC terminates the event.
func (v VTECInfo) IsCancellation() bool { return v.Action.IsTerminating() }

// IsUpdate reports whether this VTEC continues/revises an existing event.
func (v VTECInfo) IsUpdate() bool { return v.Action.IsUpdating() }

// IsNew reports whether this VTEC starts a new event.
func (v VTECInfo) IsNew() bool { return v.Action.IsNew() }

// StormMotion describes the direction and speed a storm cell is moving.
type StormMotion struct {
	DirectionDegrees *int
	DirectionFrom    string // cardinal direction the storm is moving FROM, for display
	SpeedMPH         *int
	SpeedKts         *int
}

// IsValid reports whether enough fields were populated to be meaningful.
func (m StormMotion) IsValid() bool {
	return m.DirectionDegrees != nil && (m.SpeedMPH != nil || m.SpeedKts != nil)
}

// ThreatData is the extracted severe-weather threat block.
type ThreatData struct {
	TornadoDetection    string // "RADAR INDICATED" | "OBSERVED" | "POSSIBLE" | ""
	TornadoDamageThreat string // "CONSIDERABLE" | "DESTRUCTIVE" | "CATASTROPHIC" | ""

	SustainedWindMinMPH *int
	SustainedWindMaxMPH *int
	MaxWindGustMPH      *int
	MaxWindGustKts      *int
	WindDamageThreat    string

	MaxHailSizeInches *float64
	HailDamageThreat  string

	SnowAmountMinInches *float64
	SnowAmountMaxInches *float64
	IceAccumulationInches *float64

	FlashFloodDetection    string
	FlashFloodDamageThreat string

	StormMotion *StormMotion
}

// HasTornado reports whether tornado detection was found.
func (t ThreatData) HasTornado() bool { return t.TornadoDetection != "" }

// HasSignificantWind reports a wind gust at or above 70 mph.
func (t ThreatData) HasSignificantWind() bool {
	return t.MaxWindGustMPH != nil && *t.MaxWindGustMPH >= 70
}

// HasSignificantHail reports hail at or above 1.0 inch.
func (t ThreatData) HasSignificantHail() bool {
	return t.MaxHailSizeInches != nil && *t.MaxHailSizeInches >= 1.0
}

var damageTierRank = map[string]int{
	"":             0,
	"CONSIDERABLE": 1,
	"DESTRUCTIVE":  2,
	"CATASTROPHIC": 3,
}

// IsPDS reports whether any damage tier reaches CONSIDERABLE or above.
func (t ThreatData) IsPDS() bool {
	tiers := []string{t.TornadoDamageThreat, t.WindDamageThreat, t.HailDamageThreat, t.FlashFloodDamageThreat}
	for _, tier := range tiers {
		if damageTierRank[strings.ToUpper(tier)] >= damageTierRank["CONSIDERABLE"] {
			return true
		}
	}
	return false
}

// Alert is the canonical weather alert record.
type Alert struct {
	ProductID string
	MessageID string
	Source    string // "nwws" | "api"

	Phenomenon   string
	Significance AlertSignificance
	EventName    string
	Priority     int

	VTEC *VTECInfo

	IssuedTime        *time.Time
	EffectiveTime     *time.Time
	OnsetTime         *time.Time
	ExpirationTime    *time.Time
	MessageExpires    *time.Time
	ParsedAt          time.Time
	LastUpdated       time.Time

	AffectedAreas    []string
	FIPSCodes        []string
	DisplayLocations string
	Polygon          [][][2]float64
	Centroid         *[2]float64

	SenderOffice string
	SenderName   string

	Headline    string
	Description string
	Instruction string
	RawText     string

	Threat ThreatData

	Status      AlertStatus
	UpdateCount int
}

// Derive sets EventName and Priority from Phenomenon+Significance. Called
// once by the parser after all other fields are populated; these two
// fields are never read from upstream input.
func (a *Alert) Derive() {
	base, ok := PHENOMENON_NAMES[a.Phenomenon]
	if !ok {
		base = "Unknown (" + a.Phenomenon + ")"
	}
	suffix := ""
	switch a.Significance {
	case SignificanceWarning:
		suffix = "Warning"
	case SignificanceWatch:
		suffix = "Watch"
	case SignificanceAdvisory:
		suffix = "Advisory"
	case SignificanceStatement:
		suffix = "Statement"
	case SignificanceOutlook:
		suffix = "Outlook"
	}
	if suffix != "" {
		a.EventName = strings.TrimSpace(base + " " + suffix)
	} else {
		a.EventName = base
	}

	p, ok := PHENOMENON_PRIORITIES[a.Phenomenon]
	if !ok {
		p = defaultPhenomenonPriority
	}
	a.Priority = p*10 + priorityForSignificance(a.Significance)
}

// IsActive reports whether the alert is currently active (not expired,
// cancelled, or otherwise known to be terminated).
func (a Alert) IsActive() bool {
	return a.Status != StatusExpired && a.Status != StatusCancelled
}

// IsExpired reports whether expiration_time has passed.
func (a Alert) IsExpired(now time.Time) bool {
	return a.ExpirationTime != nil && !a.ExpirationTime.After(now)
}

// IsWatch reports whether this alert is a watch-significance product.
func (a Alert) IsWatch() bool { return a.Significance == SignificanceWatch }

// IsWarning reports whether this alert is a warning-significance product.
func (a Alert) IsWarning() bool { return a.Significance == SignificanceWarning }

// IsHighPriority reports a tornado or severe thunderstorm warning, or any
// PDS-tagged threat.
func (a Alert) IsHighPriority() bool {
	if a.IsWarning() && (a.Phenomenon == "TO" || a.Phenomenon == "SV") {
		return true
	}
	return a.Threat.IsPDS()
}

// MarkUpdated applies an incoming alert's non-empty fields onto this one,
// matching alert manager merge semantics, and bumps UpdateCount/LastUpdated.
func (a *Alert) MarkUpdated(incoming Alert, now time.Time) {
	if incoming.Headline != "" {
		a.Headline = incoming.Headline
	}
	if incoming.Description != "" {
		a.Description = incoming.Description
	}
	if incoming.Instruction != "" {
		a.Instruction = incoming.Instruction
	}
	if incoming.ExpirationTime != nil {
		a.ExpirationTime = incoming.ExpirationTime
	}
	if len(incoming.Polygon) > 0 {
		a.Polygon = incoming.Polygon
	}
	if incoming.Threat != (ThreatData{}) {
		a.Threat = incoming.Threat
	}
	a.UpdateCount++
	a.LastUpdated = now
	a.Status = StatusUpdated
}

// MarkExpired flags the alert as expired.
func (a *Alert) MarkExpired() { a.Status = StatusExpired }

// MarkCancelled flags the alert as cancelled.
func (a *Alert) MarkCancelled() { a.Status = StatusCancelled }

// SortByPriority sorts alerts ascending by Priority, then descending by
// IssuedTime — the manager's default query ordering.
func SortByPriority(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Priority != alerts[j].Priority {
			return alerts[i].Priority < alerts[j].Priority
		}
		ti, tj := time.Time{}, time.Time{}
		if alerts[i].IssuedTime != nil {
			ti = *alerts[i].IssuedTime
		}
		if alerts[j].IssuedTime != nil {
			tj = *alerts[j].IssuedTime
		}
		return ti.After(tj)
	})
}
