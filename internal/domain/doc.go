// Package domain holds the canonical records shared across alertwx:
// the weather Alert itself, its VTEC and threat sub-records, subscriber
// sessions, and the lifecycle event type the alert manager emits to the
// fan-out broker.
//
// # Alert identity
//
// Every Alert is keyed by ProductID, a string computed deterministically
// from VTEC fields (or, absent VTEC, from a watch-header or stable-hash
// fallback — see internal/wx/alertparse) so that independently received
// copies of the same event collapse to one record. Products that match
// none of these take the last path segment of the upstream message id, or
// failing that a parse-time id, and are merged only on an exact id match.
//
// # Lifecycle ownership
//
// An Alert is created by the parser, mutated only by the alert manager
// (field merges on update) or the geometry resolver (polygon backfill on
// an alert that arrived without one), and removed by the manager on
// expiration, cancellation, or explicit call. Once removed, no further
// mutation is valid — callers must treat a removed product_id as dead.
package domain
