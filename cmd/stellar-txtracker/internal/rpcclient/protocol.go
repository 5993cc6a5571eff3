package rpcclient

const (
	// TransactionStatusSuccess indicates the transaction was included in the ledger and
	// it was executed without errors.
	TransactionStatusSuccess = "SUCCESS"
	// TransactionStatusNotFound indicates the RPC server has no record of the transaction.
	TransactionStatusNotFound = "NOT_FOUND"
	// TransactionStatusFailed indicates the transaction was included in the ledger and
	// it was executed with an error.
	TransactionStatusFailed = "FAILED"
)

type GetTransactionRequest struct {
	Hash string `json:"hash"`
}

// GetTransactionResponse is the response of the getTransaction() endpoint
type GetTransactionResponse struct {
	Status                string `json:"status"`
	LatestLedger          uint32 `json:"latestLedger"`
	LatestLedgerCloseTime int64  `json:"latestLedgerCloseTime,string"`
	OldestLedger          uint32 `json:"oldestLedger"`
	OldestLedgerCloseTime int64  `json:"oldestLedgerCloseTime,string"`

	// The fields below are only present if Status is not TransactionStatusNotFound.
	ApplicationOrder int32  `json:"applicationOrder,omitempty"`
	FeeBump          bool   `json:"feeBump,omitempty"`
	EnvelopeXdr      string `json:"envelopeXdr,omitempty"`
	ResultXdr        string `json:"resultXdr,omitempty"`
	ResultMetaXdr    string `json:"resultMetaXdr,omitempty"`
	Ledger           uint32 `json:"ledger,omitempty"`
	LedgerCloseTime  int64  `json:"createdAt,string,omitempty"`
}

// SendTransactionRequest submits a base64 encoded transaction envelope.
type SendTransactionRequest struct {
	Transaction string `json:"transaction"`
}

// SendTransactionResponse is the response of the sendTransaction() endpoint
type SendTransactionResponse struct {
	// ErrorResultXDR is a TransactionResult xdr string, only present when
	// Status is proto.TXStatusError.
	ErrorResultXDR      string   `json:"errorResultXdr,omitempty"`
	DiagnosticEventsXDR []string `json:"diagnosticEventsXdr,omitempty"`
	// Status is one of proto.TXStatusPending, proto.TXStatusDuplicate,
	// proto.TXStatusTryAgainLater or proto.TXStatusError.
	Status                string `json:"status"`
	Hash                  string `json:"hash"`
	LatestLedger          uint32 `json:"latestLedger"`
	LatestLedgerCloseTime int64  `json:"latestLedgerCloseTime,string"`
}

type GetLedgerEntriesRequest struct {
	Keys []string `json:"keys"`
}

type LedgerEntryResult struct {
	// Base64 LedgerKey this entry answers.
	KeyXDR string `json:"key"`
	// Base64 LedgerEntryData.
	DataXDR            string  `json:"xdr"`
	LastModifiedLedger uint32  `json:"lastModifiedLedgerSeq"`
	LiveUntilLedgerSeq *uint32 `json:"liveUntilLedgerSeq,omitempty"`
}

type GetLedgerEntriesResponse struct {
	Entries      []LedgerEntryResult `json:"entries"`
	LatestLedger uint32              `json:"latestLedger"`
}

type GetNetworkResponse struct {
	FriendbotURL    string `json:"friendbotUrl,omitempty"`
	Passphrase      string `json:"passphrase"`
	ProtocolVersion int    `json:"protocolVersion"`
}

type HealthCheckResult struct {
	Status                string `json:"status"`
	LatestLedger          uint32 `json:"latestLedger"`
	OldestLedger          uint32 `json:"oldestLedger"`
	LedgerRetentionWindow uint32 `json:"ledgerRetentionWindow"`
}
