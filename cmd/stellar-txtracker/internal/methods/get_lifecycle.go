package methods

import (
	"context"

	"github.com/creachadair/jrpc2"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
)

type StateGetter interface {
	State() lifecycle.State
}

// NewGetLifecycleHandler returns a json rpc handler reporting the current lifecycle.
func NewGetLifecycleHandler(getter StateGetter) jrpc2.Handler {
	return NewHandler(func(_ context.Context) (lifecycle.State, error) {
		return getter.State(), nil
	})
}
