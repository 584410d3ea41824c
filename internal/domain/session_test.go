package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriberSessionEmptyFilterWantsEverything(t *testing.T) {
	s := NewSubscriberSession("sess-1", time.Now())
	assert.True(t, s.WantsTopic("tornado"))
	assert.True(t, s.WantsTopic("anything"))
}

func TestSubscriberSessionSubscribeNarrowsFilter(t *testing.T) {
	s := NewSubscriberSession("sess-1", time.Now())
	s.Subscribe("tornado", "flash-flood")

	assert.True(t, s.WantsTopic("tornado"))
	assert.False(t, s.WantsTopic("winter-storm"))

	s.Unsubscribe("tornado")
	assert.False(t, s.WantsTopic("tornado"))
	assert.True(t, s.WantsTopic("flash-flood"))
}

func TestSubscriberSessionTouch(t *testing.T) {
	start := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	s := NewSubscriberSession("sess-1", start)
	later := start.Add(30 * time.Second)
	s.Touch(later)
	assert.Equal(t, later, s.LastPingAt)
}
