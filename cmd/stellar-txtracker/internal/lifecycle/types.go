package lifecycle

import (
	"context"
	"fmt"

	"github.com/stellar/go/txnbuild"
)

// Fee is the fee part of a request.
type Fee struct {
	// BaseFee is the per-operation fee in stroops.
	BaseFee int64
	// Memo is attached to the transaction as a text memo when set.
	Memo string
}

// TxRequest is what Submit hands to the wallet. It is only valid with a fee and
// at least one message.
type TxRequest struct {
	Msgs []txnbuild.Operation
	Fee  *Fee
}

func (r TxRequest) valid() bool {
	return r.Fee != nil && len(r.Msgs) > 0
}

// BroadcastResult is returned by a wallet once the transaction was accepted for
// inclusion.
type BroadcastResult struct {
	Hash string
}

// TxRecord is the finalized ledger result of a transaction.
type TxRecord struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
	// Code is the transaction result code. Zero means success.
	Code             int32  `json:"code"`
	Ledger           uint32 `json:"ledger"`
	LedgerCloseTime  int64  `json:"createdAt,string"`
	ApplicationOrder int32  `json:"applicationOrder"`
	FeeBump          bool   `json:"feeBump"`
	FeeCharged       int64  `json:"feeCharged"`
	EnvelopeXDR      string `json:"envelopeXdr,omitempty"`
	ResultXDR        string `json:"resultXdr,omitempty"`
	ResultMetaXDR    string `json:"resultMetaXdr,omitempty"`
}

func (r TxRecord) Succeeded() bool {
	return r.Code == 0
}

// Wallet signs and broadcasts requests. Failures should be *BroadcastError;
// anything else is reported as an unknown error.
type Wallet interface {
	Post(ctx context.Context, request TxRequest) (BroadcastResult, error)
}

// Ledger looks up finalized transactions. found is false while the
// transaction is not yet in the ledger. QueryTx must be safe to call repeatedly.
type Ledger interface {
	QueryTx(ctx context.Context, handle string) (record TxRecord, found bool, err error)
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePosting
	PhaseBroadcast
	PhaseConfirmed
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhasePosting:
		return "posting"
	case PhaseBroadcast:
		return "broadcast"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseErrored:
		return "errored"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseIdle; candidate <= PhaseErrored; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return ""
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	for candidate := OutcomeNone; candidate <= OutcomeFailure; candidate++ {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// State is a snapshot of the controller's lifecycle.
type State struct {
	// ID identifies the lifecycle started by a Submit. Empty while idle.
	ID      string    `json:"id,omitempty"`
	Phase   Phase     `json:"phase"`
	Handle  string    `json:"handle,omitempty"`
	Record  *TxRecord `json:"record,omitempty"`
	Outcome Outcome   `json:"outcome,omitempty"`
	// Reason is the classified message of an Errored lifecycle.
	Reason string `json:"reason,omitempty"`
}
