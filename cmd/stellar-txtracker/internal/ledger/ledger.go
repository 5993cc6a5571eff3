package ledger

import (
	"context"
	"fmt"

	"github.com/stellar/go/support/log"
	"github.com/stellar/go/xdr"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/rpcclient"
)

type TransactionGetter interface {
	GetTransaction(ctx context.Context, hash string) (rpcclient.GetTransactionResponse, error)
}

// Ledger looks transactions up through the getTransaction endpoint.
type Ledger struct {
	client TransactionGetter
	logger *log.Entry
}

func New(client TransactionGetter, logger *log.Entry) *Ledger {
	return &Ledger{client: client, logger: logger.WithField("subservice", "ledger")}
}

// QueryTx reports found=false while the RPC server does not know the transaction.
func (l *Ledger) QueryTx(ctx context.Context, hash string) (lifecycle.TxRecord, bool, error) {
	response, err := l.client.GetTransaction(ctx, hash)
	if err != nil {
		return lifecycle.TxRecord{}, false, fmt.Errorf("getTransaction %s: %w", hash, err)
	}

	switch response.Status {
	case rpcclient.TransactionStatusNotFound:
		return lifecycle.TxRecord{}, false, nil
	case rpcclient.TransactionStatusSuccess, rpcclient.TransactionStatusFailed:
		return l.record(hash, response), true, nil
	default:
		return lifecycle.TxRecord{}, false, fmt.Errorf("getTransaction %s: unexpected status %q", hash, response.Status)
	}
}

func (l *Ledger) record(hash string, response rpcclient.GetTransactionResponse) lifecycle.TxRecord {
	record := lifecycle.TxRecord{
		Hash:             hash,
		Status:           response.Status,
		Ledger:           response.Ledger,
		LedgerCloseTime:  response.LedgerCloseTime,
		ApplicationOrder: response.ApplicationOrder,
		FeeBump:          response.FeeBump,
		EnvelopeXDR:      response.EnvelopeXdr,
		ResultXDR:        response.ResultXdr,
		ResultMetaXDR:    response.ResultMetaXdr,
	}

	var result xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(response.ResultXdr, &result); err != nil {
		l.logger.WithError(err).WithField("tx_hash", hash).Warn("could not decode transaction result, deriving code from status")
		record.Code = codeFromStatus(response.Status)
		return record
	}
	record.Code = int32(ResultCode(result))
	record.FeeCharged = int64(result.FeeCharged)
	return record
}

// ResultCode returns the result code of a transaction. For fee bump
// transactions whose outer envelope succeeded it is the inner transaction's code.
func ResultCode(result xdr.TransactionResult) xdr.TransactionResultCode {
	code := result.Result.Code
	if code == xdr.TransactionResultCodeTxFeeBumpInnerSuccess && result.Result.InnerResultPair != nil {
		return result.Result.InnerResultPair.Result.Result.Code
	}
	return code
}

func codeFromStatus(status string) int32 {
	if status == rpcclient.TransactionStatusSuccess {
		return int32(xdr.TransactionResultCodeTxSuccess)
	}
	return int32(xdr.TransactionResultCodeTxFailed)
}
