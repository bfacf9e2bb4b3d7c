// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/novacriatura/novacriatura/internal/xdg"
)

// Mode controls which events are written.
type Mode string

// Audit logging modes.
const (
	ModeSensitive Mode = "sensitive" // failures, rejections and bootstrap only
	ModeAll       Mode = "all"       // everything; sensitive sync, rest async
)

// Writer is the interface for writing audit events to a backend.
type Writer interface {
	WriteSync(ctx context.Context, event Event) error
	WriteAsync(event Event) error
	Close() error
}

var (
	eventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novacriatura_audit_events_total",
		Help: "Total number of audit events accepted by kind",
	}, []string{"kind"})

	channelFullCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novacriatura_audit_channel_full_total",
		Help: "Total number of times the async audit channel was full",
	})

	failuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novacriatura_audit_failures_total",
		Help: "Total number of audit logging failures",
	}, []string{"reason"})

	walEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novacriatura_audit_wal_entries",
		Help: "Current number of events in the audit WAL",
	})
)

const asyncBuffer = 1000

// Logger routes audit events to a Writer based on mode and kind.
type Logger struct {
	mode      Mode
	writer    Writer
	walPath   string
	walFile   *os.File
	walMu     sync.Mutex
	asyncChan chan Event
	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Ensure Logger implements Recorder.
var _ Recorder = (*Logger)(nil)

// NewLogger creates a Logger and starts its async consumer.
// If walPath is empty, audit-wal.jsonl in the XDG state directory is used.
func NewLogger(mode Mode, writer Writer, walPath string) *Logger {
	if walPath == "" {
		stateDir := xdg.StateDir()
		if err := xdg.EnsureDir(stateDir); err != nil {
			slog.Error("failed to ensure state directory", "error", err)
		}
		walPath = filepath.Join(stateDir, "audit-wal.jsonl")
	}

	l := &Logger{
		mode:      mode,
		writer:    writer,
		walPath:   walPath,
		asyncChan: make(chan Event, asyncBuffer),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncConsumer()

	return l
}

// WALPath returns the write-ahead log location.
func (l *Logger) WALPath() string {
	return l.walPath
}

// Record routes an event. Sensitive kinds are written before Record returns;
// others are queued and dropped if the queue is full.
func (l *Logger) Record(ctx context.Context, event Event) {
	sensitive := event.Kind.Sensitive()
	if !sensitive && l.mode != ModeAll {
		return
	}

	event = enrich(ctx, event)
	eventsCounter.WithLabelValues(string(event.Kind)).Inc()

	if sensitive {
		if err := l.writer.WriteSync(ctx, event); err != nil {
			if walErr := l.writeToWAL(event); walErr != nil {
				slog.Error("audit write failed: both writer and WAL failed",
					"writer_error", err,
					"wal_error", walErr,
					"kind", event.Kind,
					"username", event.Username,
				)
				failuresCounter.WithLabelValues("wal_failed").Inc()
			}
		}
		return
	}

	select {
	case l.asyncChan <- event:
	default:
		channelFullCounter.Inc()
	}
}

func (l *Logger) asyncConsumer() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.asyncChan:
			l.writeAsync(event)
		case <-l.stopChan:
			l.drainAsync()
			return
		}
	}
}

func (l *Logger) drainAsync() {
	for {
		select {
		case event := <-l.asyncChan:
			l.writeAsync(event)
		default:
			return
		}
	}
}

func (l *Logger) writeAsync(event Event) {
	if err := l.writer.WriteAsync(event); err != nil {
		slog.Error("async audit write failed",
			"error", err,
			"kind", event.Kind,
		)
		failuresCounter.WithLabelValues("async_write_failed").Inc()
	}
}

func (l *Logger) writeToWAL(event Event) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	if l.walFile == nil {
		file, err := os.OpenFile(l.walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_SYNC, 0o600)
		if err != nil {
			return oops.With("path", l.walPath).Wrap(err)
		}
		l.walFile = file
	}

	data, err := json.Marshal(event)
	if err != nil {
		return oops.Wrap(err)
	}

	if _, err := fmt.Fprintf(l.walFile, "%s\n", data); err != nil {
		return oops.Wrap(err)
	}

	walEntriesGauge.Inc()
	return nil
}

// ReplayWAL writes every WAL event to the writer and truncates the WAL.
// Events that fail to replay are logged and counted, not retried.
func (l *Logger) ReplayWAL(ctx context.Context) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	data, err := os.ReadFile(l.walPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}
	if len(data) == 0 {
		return nil
	}

	replayed := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			slog.Error("failed to unmarshal WAL event", "error", err)
			failuresCounter.WithLabelValues("wal_unmarshal_failed").Inc()
			continue
		}

		if err := l.writer.WriteSync(ctx, event); err != nil {
			slog.Error("failed to replay WAL event", "error", err, "kind", event.Kind)
			failuresCounter.WithLabelValues("wal_replay_failed").Inc()
			continue
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}

	if err := os.Truncate(l.walPath, 0); err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}

	walEntriesGauge.Set(0)
	slog.Info("replayed audit WAL", "count", replayed)
	return nil
}

// Close drains queued events and closes the writer and WAL. Safe to call
// more than once.
func (l *Logger) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()

		if err := l.writer.Close(); err != nil {
			closeErr = oops.Wrap(err)
		}

		l.walMu.Lock()
		defer l.walMu.Unlock()
		if l.walFile != nil {
			if err := l.walFile.Close(); err != nil && closeErr == nil {
				closeErr = oops.Wrap(err)
			}
			l.walFile = nil
		}
	})
	return closeErr
}
