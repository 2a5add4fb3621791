// Package observability provides event logging, metrics calculation, and
// alerting for the workflow core. It uses structured JSON Lines (JSONL)
// for event persistence and derives metrics on-demand from the event log.
package observability
