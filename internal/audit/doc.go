// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Package audit records security-relevant authentication events.
//
// # Routing
//
// The Logger routes events by kind:
//
//	login_failed, register_rejected, session_rejected,
//	privileged_bootstrapped → sync write → WAL fallback on failure
//	everything else (ModeAll only) → async write via buffered channel
//
// # Resilience
//
// When a sync write fails the event is appended to a JSONL write-ahead log at
// $XDG_STATE_HOME/novacriatura/audit-wal.jsonl. ReplayWAL pushes those events
// back through the writer and truncates the file.
//
// # Writers
//
//   - SlogWriter: emits events as structured log records
//   - PostgresWriter: inserts into the auth_audit_log table
//
// # Metrics
//
//   - novacriatura_audit_events_total{kind}: Events accepted by the logger
//   - novacriatura_audit_channel_full_total: Async channel overflow counter
//   - novacriatura_audit_failures_total{reason}: Failure counter by reason
//   - novacriatura_audit_wal_entries: Current WAL entry count
package audit
