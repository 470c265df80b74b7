// Package audit persists an append-only log of successful authentications.
// Events flow through a buffered channel to a single writer goroutine so
// recording never blocks the request path.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/toolbooth/toolbooth/internal/auth"
)

const chanBuffer = 256

var bucketEvents = []byte("auth_events")

// Event is one successful authentication.
type Event struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Subject   string    `json:"subject,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log records authentication events in a bbolt database.
// It implements the gateway's Recorder interface.
type Log struct {
	db     *bolt.DB
	ch     chan Event
	done   chan struct{}
	logger *slog.Logger
}

// Open opens (or creates) the audit database at path and starts the
// writer goroutine. Call Close to flush and release the database.
func Open(path string, logger *slog.Logger) (*Log, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit bucket: %w", err)
	}

	l := &Log{
		db:     db,
		ch:     make(chan Event, chanBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()

	return l, nil
}

// Record enqueues an event. Non-blocking; the event is dropped with a
// warning if the writer cannot keep up.
func (l *Log) Record(method auth.Method, subject string, at time.Time) {
	event := Event{
		ID:        uuid.NewString(),
		Method:    string(method),
		Subject:   subject,
		Timestamp: at,
	}

	select {
	case l.ch <- event:
	default:
		l.logger.Warn("audit channel full, dropping event",
			slog.String("method", event.Method),
		)
	}
}

// Close stops the writer goroutine, flushes pending events, and closes
// the database.
func (l *Log) Close() error {
	close(l.ch)
	<-l.done
	return l.db.Close()
}

func (l *Log) run() {
	defer close(l.done)

	for event := range l.ch {
		if err := l.write(event); err != nil {
			l.logger.Error("failed to write audit event",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (l *Log) write(event Event) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		value, err := json.Marshal(event)
		if err != nil {
			return err
		}

		return b.Put(key, value)
	})
}

// Recent returns up to n events, newest first.
func (l *Log) Recent(n int) ([]Event, error) {
	var events []Event

	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(events) < n; k, v = c.Prev() {
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}
