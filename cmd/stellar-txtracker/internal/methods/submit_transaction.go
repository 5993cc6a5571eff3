package methods

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"

	"github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/ops"
)

// Submitter is the part of the lifecycle controller used to start transactions.
type Submitter interface {
	Submit(request lifecycle.TxRequest)
	State() lifecycle.State
}

type SubmitTransactionRequest struct {
	Operations []ops.Spec `json:"operations"`
	// BaseFee is the per-operation fee in stroops. A request without it is not submitted.
	BaseFee *int64 `json:"baseFee,omitempty"`
	Memo    string `json:"memo,omitempty"`
}

type SubmitTransactionResponse struct {
	// ID identifies the started lifecycle. Empty when the request was not accepted.
	ID       string `json:"id,omitempty"`
	Accepted bool   `json:"accepted"`
}

// NewSubmitTransactionHandler returns a json rpc handler starting a new
// lifecycle. It does not wait for the transaction to be broadcast.
func NewSubmitTransactionHandler(logger *log.Entry, submitter Submitter) jrpc2.Handler {
	// serializes submissions so the id read back belongs to our own Submit
	var mu sync.Mutex
	return NewHandler(func(_ context.Context, request SubmitTransactionRequest) (SubmitTransactionResponse, error) {
		operations, err := ops.BuildAll(request.Operations)
		if err != nil {
			return SubmitTransactionResponse{}, invalidParams(err.Error())
		}
		if len(request.Memo) > 28 { //nolint:mnd
			return SubmitTransactionResponse{}, invalidParams("memo cannot be longer than 28 bytes")
		}

		txRequest := lifecycle.TxRequest{Msgs: operations}
		if request.BaseFee != nil {
			txRequest.Fee = &lifecycle.Fee{BaseFee: *request.BaseFee, Memo: request.Memo}
		}

		mu.Lock()
		defer mu.Unlock()
		before := submitter.State().ID
		submitter.Submit(txRequest)
		after := submitter.State().ID
		if after == before {
			logger.Debug("ignored incomplete submitTransaction request")
			return SubmitTransactionResponse{}, nil
		}
		return SubmitTransactionResponse{ID: after, Accepted: true}, nil
	})
}
