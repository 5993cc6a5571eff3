package daemon

import (
	"fmt"

	"github.com/cenkalti/backoff/v4"

	supportlog "github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/config"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/ledger"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/rpcclient"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/wallet"
)

// Capabilities are the collaborators a lifecycle controller is built from.
type Capabilities struct {
	Client *rpcclient.Client
	Wallet *wallet.Wallet
	Ledger *ledger.Ledger
}

// NewCapabilities connects to the configured RPC server and prepares the
// signing wallet. approve may be nil to sign without asking.
func NewCapabilities(
	cfg *config.Config,
	logger *supportlog.Entry,
	daemon interfaces.Daemon,
	approve wallet.ApproveFunc,
) (Capabilities, error) {
	keys, err := cfg.Signer()
	if err != nil {
		return Capabilities{}, fmt.Errorf("invalid signing secret: %w", err)
	}
	client := rpcclient.New(cfg.RPCURL, cfg.RPCRequestTimeout)
	return Capabilities{
		Client: client,
		Wallet: wallet.New(wallet.Config{
			Client:            client,
			Signer:            wallet.KeypairSigner{Keypair: keys, Approve: approve},
			NetworkPassphrase: cfg.NetworkPassphrase,
			SubmitTimeout:     cfg.SubmitTimeout,
			TxTimeout:         cfg.TxTimeout,
			Logger:            logger,
			Daemon:            daemon,
		}),
		Ledger: ledger.New(client, logger),
	}, nil
}

// NewController returns a lifecycle controller polling with the configured policy.
func NewController(
	cfg *config.Config,
	capabilities Capabilities,
	logger *supportlog.Entry,
	daemon interfaces.Daemon,
	opts lifecycle.Options,
) *lifecycle.Controller {
	return lifecycle.New(lifecycle.Config{
		Wallet:     capabilities.Wallet,
		Ledger:     capabilities.Ledger,
		Logger:     logger,
		Daemon:     daemon,
		NewBackOff: pollBackOff(cfg),
	}, opts)
}

func pollBackOff(cfg *config.Config) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.PollInitialInterval
		b.MaxInterval = cfg.PollMaxInterval
		b.Multiplier = cfg.PollMultiplier
		b.RandomizationFactor = cfg.PollRandomizationFactor
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}
