// Package ops turns operation descriptions received from clients into
// txnbuild operations.
package ops

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

const (
	TypePayment       = "payment"
	TypeCreateAccount = "create_account"
	TypeManageData    = "manage_data"
	TypeBumpSequence  = "bump_sequence"
)

// Spec describes a single operation. Which fields are used depends on Type.
type Spec struct {
	Type        string `json:"type"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Amount      string `json:"amount,omitempty"`
	// Asset is "native" (the default) or CODE:ISSUER.
	Asset  string `json:"asset,omitempty"`
	Name   string `json:"name,omitempty"`
	Value  string `json:"value,omitempty"`
	BumpTo int64  `json:"bumpTo,omitempty"`
}

func (s Spec) Build() (txnbuild.Operation, error) {
	if s.Source != "" {
		if _, err := keypair.ParseAddress(s.Source); err != nil {
			return nil, fmt.Errorf("invalid source %q: %w", s.Source, err)
		}
	}

	switch s.Type {
	case TypePayment:
		if err := checkDestinationAndAmount(s); err != nil {
			return nil, err
		}
		asset, err := ParseAsset(s.Asset)
		if err != nil {
			return nil, err
		}
		return &txnbuild.Payment{
			Destination:   s.Destination,
			Amount:        s.Amount,
			Asset:         asset,
			SourceAccount: s.Source,
		}, nil
	case TypeCreateAccount:
		if err := checkDestinationAndAmount(s); err != nil {
			return nil, err
		}
		return &txnbuild.CreateAccount{
			Destination:   s.Destination,
			Amount:        s.Amount,
			SourceAccount: s.Source,
		}, nil
	case TypeManageData:
		if s.Name == "" {
			return nil, errors.New("manage_data requires a name")
		}
		var value []byte
		if s.Value != "" {
			value = []byte(s.Value)
		}
		return &txnbuild.ManageData{Name: s.Name, Value: value, SourceAccount: s.Source}, nil
	case TypeBumpSequence:
		if s.BumpTo <= 0 {
			return nil, errors.New("bump_sequence requires a positive bumpTo")
		}
		return &txnbuild.BumpSequence{BumpTo: s.BumpTo, SourceAccount: s.Source}, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", s.Type)
	}
}

func checkDestinationAndAmount(s Spec) error {
	if _, err := keypair.ParseAddress(s.Destination); err != nil {
		return fmt.Errorf("%s: invalid destination %q: %w", s.Type, s.Destination, err)
	}
	if _, err := amount.Parse(s.Amount); err != nil {
		return fmt.Errorf("%s: invalid amount %q: %w", s.Type, s.Amount, err)
	}
	return nil
}

// BuildAll builds every spec, reporting the index of the first invalid one.
func BuildAll(specs []Spec) ([]txnbuild.Operation, error) {
	operations := make([]txnbuild.Operation, 0, len(specs))
	for i, spec := range specs {
		op, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		operations = append(operations, op)
	}
	return operations, nil
}

func ParseAsset(s string) (txnbuild.Asset, error) {
	if s == "" || s == "native" {
		return txnbuild.NativeAsset{}, nil
	}
	code, issuer, ok := strings.Cut(s, ":")
	if !ok || code == "" {
		return nil, fmt.Errorf("invalid asset %q, expected native or CODE:ISSUER", s)
	}
	if _, err := keypair.ParseAddress(issuer); err != nil {
		return nil, fmt.Errorf("invalid asset issuer %q: %w", issuer, err)
	}
	return txnbuild.CreditAsset{Code: code, Issuer: issuer}, nil
}

// Parse reads the command line form TYPE:key=value,key=value, for example
// payment:destination=G...,amount=10.
func Parse(s string) (Spec, error) {
	opType, rest, _ := strings.Cut(s, ":")
	spec := Spec{Type: opType}
	if rest == "" {
		return spec, nil
	}
	for _, field := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Spec{}, fmt.Errorf("invalid field %q in %q, expected key=value", field, s)
		}
		switch key {
		case "source":
			spec.Source = value
		case "destination":
			spec.Destination = value
		case "amount":
			spec.Amount = value
		case "asset":
			spec.Asset = value
		case "name":
			spec.Name = value
		case "value":
			spec.Value = value
		case "bumpTo":
			bumpTo, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Spec{}, fmt.Errorf("invalid bumpTo %q: %w", value, err)
			}
			spec.BumpTo = bumpTo
		default:
			return Spec{}, fmt.Errorf("unknown field %q in %q", key, s)
		}
	}
	return spec, nil
}
