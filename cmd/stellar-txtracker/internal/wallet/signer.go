package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// ErrDenied is returned by a Signer when the signing request was rejected.
var ErrDenied = errors.New("signing request denied")

type Signer interface {
	// Address is the source account of the transactions being signed.
	Address() string
	Sign(ctx context.Context, tx *txnbuild.Transaction, networkPassphrase string) (*txnbuild.Transaction, error)
}

// ApproveFunc decides whether tx may be signed.
type ApproveFunc func(ctx context.Context, tx *txnbuild.Transaction) (bool, error)

// KeypairSigner signs with a local secret key, after asking Approve if it is set.
type KeypairSigner struct {
	Keypair *keypair.Full
	Approve ApproveFunc
}

func (s KeypairSigner) Address() string {
	return s.Keypair.Address()
}

func (s KeypairSigner) Sign(ctx context.Context, tx *txnbuild.Transaction, networkPassphrase string) (*txnbuild.Transaction, error) {
	if s.Approve != nil {
		approved, err := s.Approve(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("approval failed: %w", err)
		}
		if !approved {
			return nil, ErrDenied
		}
	}
	return tx.Sign(networkPassphrase, s.Keypair)
}

// PromptApprove asks on the terminal before every signature.
func PromptApprove(_ context.Context, tx *txnbuild.Transaction) (bool, error) {
	prompt := promptui.Prompt{
		Label: fmt.Sprintf("Sign transaction with %d operation(s), max fee %d stroops, sequence %d",
			len(tx.Operations()), tx.MaxFee(), tx.SequenceNumber()),
		IsConfirm: true,
	}
	_, err := prompt.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort), errors.Is(err, promptui.ErrInterrupt):
		return false, nil
	default:
		return false, err
	}
}
