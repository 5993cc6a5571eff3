package daemon

import (
	"context"
	"time"

	supportlog "github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/db"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
)

const journalWriteTimeout = 5 * time.Second

// recorder journals and logs every lifecycle notification.
type recorder struct {
	journal *db.Journal
	logger  *supportlog.Entry
	// lifecycleID returns the id of the lifecycle the notification being
	// delivered belongs to, fixed when the notification was queued.
	lifecycleID func() string
}

func (r *recorder) options() lifecycle.Options {
	return lifecycle.Options{
		OnPosting: func() {
			r.record(db.Entry{Event: db.EventPosting})
		},
		OnBroadcasting: func(handle string) {
			r.record(db.Entry{Event: db.EventBroadcasting, Handle: handle})
		},
		OnSuccess: func(handle string, record lifecycle.TxRecord) {
			code := record.Code
			r.record(db.Entry{Event: db.EventSuccess, Handle: handle, Code: &code})
		},
		OnError: func(messageOrHandle string, detail any) {
			r.record(errorEntry(messageOrHandle, detail))
		},
	}
}

// errorEntry tells the two shapes of an error notification apart.
func errorEntry(messageOrHandle string, detail any) db.Entry {
	if record, ok := detail.(lifecycle.TxRecord); ok {
		code := record.Code
		return db.Entry{Event: db.EventError, Handle: messageOrHandle, Message: record.Status, Code: &code}
	}
	return db.Entry{Event: db.EventError, Message: messageOrHandle}
}

func (r *recorder) record(entry db.Entry) {
	entry.LifecycleID = r.lifecycleID()
	logger := r.logger.WithFields(supportlog.F{
		"lifecycle_id": entry.LifecycleID,
		"event":        entry.Event,
	})
	if entry.Handle != "" {
		logger = logger.WithField("tx_hash", entry.Handle)
	}
	if entry.Message != "" {
		logger = logger.WithField("message", entry.Message)
	}
	logger.Info("lifecycle notification")

	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	if _, err := r.journal.Append(ctx, entry); err != nil {
		logger.WithError(err).Error("could not journal lifecycle notification")
	}
}
