package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertDeriveWarningVsWatch(t *testing.T) {
	warning := Alert{Phenomenon: "TO", Significance: SignificanceWarning}
	warning.Derive()
	watch := Alert{Phenomenon: "TO", Significance: SignificanceWatch}
	watch.Derive()

	assert.Equal(t, "Tornado Warning", warning.EventName)
	assert.Equal(t, "Tornado Watch", watch.EventName)
	assert.Less(t, warning.Priority, watch.Priority, "warnings must outrank watches for the same phenomenon")
}

func TestAlertDeriveUnknownPhenomenon(t *testing.T) {
	a := Alert{Phenomenon: "ZZ", Significance: SignificanceWarning}
	a.Derive()
	assert.Contains(t, a.EventName, "Unknown")
	assert.Equal(t, defaultPhenomenonPriority*10, a.Priority)
}

func TestIsHighPriority(t *testing.T) {
	tornado := Alert{Phenomenon: "TO", Significance: SignificanceWarning}
	assert.True(t, tornado.IsHighPriority())

	advisory := Alert{Phenomenon: "WW", Significance: SignificanceAdvisory}
	assert.False(t, advisory.IsHighPriority())

	pds := Alert{Phenomenon: "WW", Significance: SignificanceAdvisory, Threat: ThreatData{HailDamageThreat: "DESTRUCTIVE"}}
	assert.True(t, pds.IsHighPriority())
}

func TestThreatDataIsPDS(t *testing.T) {
	cases := []struct {
		name string
		t    ThreatData
		want bool
	}{
		{"empty", ThreatData{}, false},
		{"considerable", ThreatData{TornadoDamageThreat: "CONSIDERABLE"}, true},
		{"destructive wind", ThreatData{WindDamageThreat: "DESTRUCTIVE"}, true},
		{"lowercase catastrophic", ThreatData{HailDamageThreat: "catastrophic"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.t.IsPDS())
		})
	}
}

func TestAlertIsExpired(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	a := Alert{ExpirationTime: &past}
	assert.True(t, a.IsExpired(now))

	a.ExpirationTime = &future
	assert.False(t, a.IsExpired(now))

	a.ExpirationTime = nil
	assert.False(t, a.IsExpired(now))
}

func TestMarkUpdatedMergesNonEmptyFields(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	later := now.Add(10 * time.Minute)

	original := Alert{
		ProductID:   "TO.W.KXYZ.0001",
		Headline:    "original headline",
		Description: "original description",
		UpdateCount: 0,
		Status:      StatusActive,
	}

	incoming := Alert{
		Headline: "updated headline",
		// Description intentionally blank: must not overwrite original.
	}

	original.MarkUpdated(incoming, later)

	require.Equal(t, "updated headline", original.Headline)
	assert.Equal(t, "original description", original.Description)
	assert.Equal(t, 1, original.UpdateCount)
	assert.Equal(t, later, original.LastUpdated)
	assert.Equal(t, StatusUpdated, original.Status)
}

func TestSortByPriority(t *testing.T) {
	t1 := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)

	low := Alert{Priority: 50, IssuedTime: &t1}
	highOlder := Alert{Priority: 10, IssuedTime: &t1}
	highNewer := Alert{Priority: 10, IssuedTime: &t2}

	alerts := []Alert{low, highOlder, highNewer}
	SortByPriority(alerts)

	assert.Equal(t, 10, alerts[0].Priority)
	assert.Equal(t, t2, *alerts[0].IssuedTime, "same priority sorts newest issued first")
	assert.Equal(t, 50, alerts[2].Priority)
}

func TestVTECActionClassification(t *testing.T) {
	assert.True(t, ActionNew.IsNew())
	assert.True(t, ActionCon.IsUpdating())
	assert.True(t, ActionCan.IsTerminating())
	assert.True(t, ActionExp.IsTerminating())
	assert.False(t, ActionNew.IsTerminating())
}
