package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creachadair/jrpc2"
	"github.com/prometheus/client_golang/prometheus"

	proto "github.com/stellar/go/protocols/stellarcore"
	"github.com/stellar/go/support/log"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/rpcclient"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	defaultTxTimeout     = 5 * time.Minute
)

var errTryAgainLater = errors.New("network asked to try again later")

type Client interface {
	GetLedgerEntries(ctx context.Context, keys ...string) (rpcclient.GetLedgerEntriesResponse, error)
	SendTransaction(ctx context.Context, envelopeXDR string) (rpcclient.SendTransactionResponse, error)
}

type Config struct {
	Client            Client
	Signer            Signer
	NetworkPassphrase string
	// SubmitTimeout bounds a whole Post, including signing approval.
	SubmitTimeout time.Duration
	// TxTimeout is the upper time bound put on built transactions.
	TxTimeout time.Duration
	Logger    *log.Entry
	Daemon    interfaces.Daemon
	// NewBackOff paces resubmissions after TRY_AGAIN_LATER.
	NewBackOff func() backoff.BackOff
}

// Wallet builds, signs and broadcasts transactions for a single source account.
type Wallet struct {
	client            Client
	signer            Signer
	networkPassphrase string
	submitTimeout     time.Duration
	txTimeout         time.Duration
	logger            *log.Entry
	newBackOff        func() backoff.BackOff

	submitMetric  *prometheus.SummaryVec
	opCountMetric *prometheus.SummaryVec
}

func New(cfg Config) *Wallet {
	w := &Wallet{
		client:            cfg.Client,
		signer:            cfg.Signer,
		networkPassphrase: cfg.NetworkPassphrase,
		submitTimeout:     cfg.SubmitTimeout,
		txTimeout:         cfg.TxTimeout,
		logger:            cfg.Logger,
		newBackOff:        cfg.NewBackOff,
	}
	if w.submitTimeout <= 0 {
		w.submitTimeout = defaultSubmitTimeout
	}
	if w.txTimeout <= 0 {
		w.txTimeout = defaultTxTimeout
	}
	if w.logger == nil {
		w.logger = log.DefaultLogger
	}
	w.logger = w.logger.WithField("subservice", "wallet")
	if w.newBackOff == nil {
		w.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}

	daemon := cfg.Daemon
	if daemon == nil {
		daemon = interfaces.MakeNoOpDaemon()
	}
	w.submitMetric = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: daemon.MetricsNamespace(), Subsystem: "txsub", Name: "submission_duration_seconds",
		Help:       "sendTransaction durations, sliding window = 10m",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}, //nolint:mnd
	}, []string{"status"})
	w.opCountMetric = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: daemon.MetricsNamespace(), Subsystem: "txsub", Name: "operation_count",
		Help:       "number of operations included in a submitted transaction, sliding window = 10m",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}, //nolint:mnd
	}, []string{"status"})
	daemon.MetricsRegistry().MustRegister(w.submitMetric, w.opCountMetric)
	return w
}

// Post signs request with the configured signer and broadcasts it. Failures
// are *lifecycle.BroadcastError, except for transport errors.
func (w *Wallet) Post(ctx context.Context, request lifecycle.TxRequest) (lifecycle.BroadcastResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.submitTimeout)
	defer cancel()

	tx, err := w.build(ctx, request)
	if err != nil {
		return lifecycle.BroadcastResult{}, classify(ctx, lifecycle.CreateTxFailed, err)
	}

	signed, err := w.signer.Sign(ctx, tx, w.networkPassphrase)
	switch {
	case errors.Is(err, ErrDenied):
		return lifecycle.BroadcastResult{}, lifecycle.NewBroadcastError(lifecycle.UserDenied, err)
	case err != nil:
		return lifecycle.BroadcastResult{}, classify(ctx, lifecycle.UnspecifiedError, err)
	}

	hash, err := signed.HashHex(w.networkPassphrase)
	if err != nil {
		return lifecycle.BroadcastResult{}, classify(ctx, lifecycle.CreateTxFailed, err)
	}
	envelope, err := signed.Base64()
	if err != nil {
		return lifecycle.BroadcastResult{}, classify(ctx, lifecycle.CreateTxFailed, err)
	}

	logger := w.logger.WithFields(log.F{"tx_hash": hash, "sequence": signed.SequenceNumber()})
	logger.Debug("sending transaction")
	return w.send(ctx, logger, hash, envelope, len(request.Msgs))
}

func (w *Wallet) build(ctx context.Context, request lifecycle.TxRequest) (*txnbuild.Transaction, error) {
	sequence, err := w.loadSequence(ctx)
	if err != nil {
		return nil, err
	}

	var memo txnbuild.Memo
	if request.Fee.Memo != "" {
		memo = txnbuild.MemoText(request.Fee.Memo)
	}
	return txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: w.signer.Address(), Sequence: sequence},
		IncrementSequenceNum: true,
		Operations:           request.Msgs,
		BaseFee:              request.Fee.BaseFee,
		Memo:                 memo,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(w.txTimeout.Seconds())),
		},
	})
}

// loadSequence reads the current sequence number of the signer's account.
func (w *Wallet) loadSequence(ctx context.Context) (int64, error) {
	address := w.signer.Address()
	accountID, err := xdr.AddressToAccountId(address)
	if err != nil {
		return 0, err
	}
	key, err := xdr.MarshalBase64(xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: accountID},
	})
	if err != nil {
		return 0, err
	}

	response, err := w.client.GetLedgerEntries(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("could not load source account: %w", err)
	}
	if len(response.Entries) == 0 {
		return 0, fmt.Errorf("source account %s not found", address)
	}
	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(response.Entries[0].DataXDR, &data); err != nil {
		return 0, fmt.Errorf("could not decode source account: %w", err)
	}
	account, ok := data.GetAccount()
	if !ok {
		return 0, fmt.Errorf("ledger entry of %s is not an account", address)
	}
	return int64(account.SeqNum), nil
}

func (w *Wallet) send(ctx context.Context, logger *log.Entry, hash, envelope string, opCount int) (lifecycle.BroadcastResult, error) {
	var response rpcclient.SendTransactionResponse
	submit := func() error {
		var err error
		startTime := time.Now()
		response, err = w.client.SendTransaction(ctx, envelope)
		w.observe(time.Since(startTime), response, err, opCount)
		if err != nil {
			return backoff.Permanent(err)
		}
		if response.Status == proto.TXStatusTryAgainLater {
			return errTryAgainLater
		}
		return nil
	}
	notify := func(_ error, next time.Duration) {
		logger.WithField("retry_in", next.String()).Info("network asked to try again later")
	}

	if err := backoff.RetryNotify(submit, backoff.WithContext(w.newBackOff(), ctx), notify); err != nil {
		var rpcErr *jrpc2.Error
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return lifecycle.BroadcastResult{}, lifecycle.NewBroadcastError(lifecycle.Timeout, err)
		case errors.As(err, &rpcErr):
			return lifecycle.BroadcastResult{}, lifecycle.NewBroadcastError(lifecycle.UnspecifiedError, rpcErr)
		default:
			return lifecycle.BroadcastResult{}, err
		}
	}

	switch response.Status {
	case proto.TXStatusPending, proto.TXStatusDuplicate:
		if response.Hash != "" && response.Hash != hash {
			logger.WithField("rpc_hash", response.Hash).Warn("RPC server reported a different transaction hash")
		}
		return lifecycle.BroadcastResult{Hash: hash}, nil
	case proto.TXStatusError:
		return lifecycle.BroadcastResult{}, &lifecycle.BroadcastError{
			Kind:   lifecycle.TxFailed,
			Detail: describeResult(response.ErrorResultXDR),
		}
	default:
		return lifecycle.BroadcastResult{}, lifecycle.NewBroadcastError(
			lifecycle.UnspecifiedError,
			fmt.Errorf("unexpected submission status %q", response.Status),
		)
	}
}

func (w *Wallet) observe(duration time.Duration, response rpcclient.SendTransactionResponse, err error, opCount int) {
	status := response.Status
	if err != nil {
		status = "request_error"
	}
	label := prometheus.Labels{"status": status}
	w.submitMetric.With(label).Observe(duration.Seconds())
	w.opCountMetric.With(label).Observe(float64(opCount))
}

// classify reports a deadline hit while posting as a timeout, and anything else as kind.
func classify(ctx context.Context, kind lifecycle.FailureKind, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return lifecycle.NewBroadcastError(lifecycle.Timeout, err)
	}
	return lifecycle.NewBroadcastError(kind, err)
}

func describeResult(resultXDR string) string {
	var result xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(resultXDR, &result); err != nil {
		return "transaction rejected with an undecodable result"
	}
	return result.Result.Code.String()
}
