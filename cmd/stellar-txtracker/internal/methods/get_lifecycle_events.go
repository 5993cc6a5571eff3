package methods

import (
	"context"
	"fmt"

	"github.com/creachadair/jrpc2"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/db"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

type JournalReader interface {
	Events(ctx context.Context, filter db.EventFilter) ([]db.Entry, error)
}

type GetLifecycleEventsRequest struct {
	// Cursor is the id of the last entry already seen.
	Cursor      int64  `json:"cursor,omitempty"`
	Limit       uint   `json:"limit,omitempty"`
	LifecycleID string `json:"lifecycleId,omitempty"`
}

func (request GetLifecycleEventsRequest) valid() error {
	if request.Cursor < 0 {
		return fmt.Errorf("cursor must not be negative")
	}
	if request.Limit > maxEventsLimit {
		return fmt.Errorf("limit must not exceed %d", maxEventsLimit)
	}
	return nil
}

type GetLifecycleEventsResponse struct {
	Events []db.Entry `json:"events"`
	// Cursor is the value to pass to fetch the entries following these.
	Cursor int64 `json:"cursor"`
}

// NewGetLifecycleEventsHandler returns a json rpc handler paging through the journal.
func NewGetLifecycleEventsHandler(journal JournalReader) jrpc2.Handler {
	return NewHandler(func(ctx context.Context, request GetLifecycleEventsRequest) (GetLifecycleEventsResponse, error) {
		if err := request.valid(); err != nil {
			return GetLifecycleEventsResponse{}, invalidParams(err.Error())
		}
		limit := request.Limit
		if limit == 0 {
			limit = defaultEventsLimit
		}

		events, err := journal.Events(ctx, db.EventFilter{
			Cursor:      request.Cursor,
			Limit:       uint64(limit),
			LifecycleID: request.LifecycleID,
		})
		if err != nil {
			return GetLifecycleEventsResponse{}, internalError(err)
		}

		cursor := request.Cursor
		if len(events) > 0 {
			cursor = events[len(events)-1].ID
		}
		return GetLifecycleEventsResponse{Events: events, Cursor: cursor}, nil
	})
}
