package db

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/stellar/go/support/db"
	"github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
)

const journalTableName = "journal"

// Journal events, one per lifecycle notification.
const (
	EventPosting      = "posting"
	EventBroadcasting = "broadcasting"
	EventSuccess      = "success"
	EventError        = "error"
)

var ErrClosed = errors.New("journal is closed")

// Entry is a journaled lifecycle notification.
type Entry struct {
	ID          int64  `db:"id" json:"id"`
	LifecycleID string `db:"lifecycle_id" json:"lifecycleId"`
	Event       string `db:"event" json:"event"`
	Handle      string `db:"handle" json:"handle,omitempty"`
	Message     string `db:"message" json:"message,omitempty"`
	// Code is the transaction result code, set on entries for finalized transactions.
	Code *int32 `db:"code" json:"code,omitempty"`
	// CreatedAt is in unix milliseconds.
	CreatedAt int64 `db:"created_at" json:"createdAt,string"`
}

type EventFilter struct {
	// Cursor excludes entries with an id lower than or equal to it.
	Cursor      int64
	Limit       uint64
	LifecycleID string
}

// Journal keeps the most recent lifecycle notifications in an in-memory sqlite
// database. Nothing survives a restart.
type Journal struct {
	db         db.SessionInterface
	log        *log.Entry
	maxEntries uint32
	now        func() time.Time
	closed     atomic.Bool
}

// NewJournal opens an empty journal keeping at most maxEntries entries, or
// all of them when maxEntries is 0.
func NewJournal(logger *log.Entry, daemon interfaces.Daemon, maxEntries uint32) (*Journal, error) {
	if daemon == nil {
		daemon = interfaces.MakeNoOpDaemon()
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	session, err := openSession(daemon.MetricsNamespace(), daemon.MetricsRegistry())
	if err != nil {
		return nil, err
	}
	return &Journal{
		db:         session,
		log:        logger.WithField("subservice", "journal"),
		maxEntries: maxEntries,
		now:        time.Now,
	}, nil
}

// Append stores entry and returns its id. ID and CreatedAt are assigned by the journal.
func (j *Journal) Append(ctx context.Context, entry Entry) (int64, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	insert := sq.Insert(journalTableName).
		Columns("lifecycle_id", "event", "handle", "message", "code", "created_at").
		Values(entry.LifecycleID, entry.Event, entry.Handle, entry.Message, entry.Code, j.now().UnixMilli())
	result, err := j.db.Exec(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("could not insert journal entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if j.maxEntries > 0 && id > int64(j.maxEntries) {
		trim := sq.Delete(journalTableName).Where(sq.LtOrEq{"id": id - int64(j.maxEntries)})
		if _, err := j.db.Exec(ctx, trim); err != nil {
			// the entry itself was stored, an oversized journal is not fatal
			j.log.WithError(err).Warn("could not trim journal")
		}
	}
	return id, nil
}

// Events returns entries after filter.Cursor in id order.
func (j *Journal) Events(ctx context.Context, filter EventFilter) ([]Entry, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	query := sq.
		Select("id", "lifecycle_id", "event", "handle", "message", "code", "created_at").
		From(journalTableName).
		Where(sq.Gt{"id": filter.Cursor}).
		OrderBy("id ASC")
	if filter.LifecycleID != "" {
		query = query.Where(sq.Eq{"lifecycle_id": filter.LifecycleID})
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	entries := []Entry{}
	if err := j.db.Select(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("could not read journal: %w", err)
	}
	return entries, nil
}

// Close drops the database and everything in it.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	return j.db.Close()
}
