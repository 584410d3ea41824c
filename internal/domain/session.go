package domain

import "time"

// SubscriberSession is one connected fan-out broker client. The broker owns
// the write side (net.Conn/websocket.Conn); domain only tracks identity and
// subscription state so the alert manager and broker can reason about it
// without importing transport packages.
type SubscriberSession struct {
	ID           string
	TopicFilters map[string]bool
	ConnectedAt  time.Time
	LastPingAt   time.Time
}

// NewSubscriberSession creates a session with no topic filters, meaning it
// receives every alert until Subscribe narrows it.
func NewSubscriberSession(id string, now time.Time) *SubscriberSession {
	return &SubscriberSession{
		ID:           id,
		TopicFilters: make(map[string]bool),
		ConnectedAt:  now,
		LastPingAt:   now,
	}
}

// Subscribe adds topics to the filter set.
func (s *SubscriberSession) Subscribe(topics ...string) {
	for _, t := range topics {
		s.TopicFilters[t] = true
	}
}

// Unsubscribe removes topics from the filter set.
func (s *SubscriberSession) Unsubscribe(topics ...string) {
	for _, t := range topics {
		delete(s.TopicFilters, t)
	}
}

// WantsTopic reports whether this session should receive a message about
// topic. An empty filter set means "receive everything."
func (s *SubscriberSession) WantsTopic(topic string) bool {
	if len(s.TopicFilters) == 0 {
		return true
	}
	return s.TopicFilters[topic]
}

// Touch records a ping from this session.
func (s *SubscriberSession) Touch(now time.Time) {
	s.LastPingAt = now
}
