package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	supportlog "github.com/stellar/go/support/log"
	"github.com/stellar/go/xdr"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/config"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/ops"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/wallet"
)

func newSubmitCmd(cfg *config.Config, loadConfig func()) *cobra.Command {
	var (
		opSpecs []string
		baseFee int64
		memo    string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one transaction and wait until it is final",
		Example: `  stellar-txtracker submit --op payment:destination=GB...,amount=10
  stellar-txtracker submit --op manage_data:name=greeting,value=hello --memo hi`,
		Run: func(_ *cobra.Command, _ []string) {
			loadConfig()
			specs := make([]ops.Spec, 0, len(opSpecs))
			for _, s := range opSpecs {
				spec, err := ops.Parse(s)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(1)
				}
				specs = append(specs, spec)
			}
			operations, err := ops.BuildAll(specs)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			request := lifecycle.TxRequest{
				Msgs: operations,
				Fee:  &lifecycle.Fee{BaseFee: baseFee, Memo: memo},
			}
			os.Exit(runSubmit(cfg, request, color.Output))
		},
	}
	cmd.Flags().StringArrayVar(&opSpecs, "op", nil,
		"operation to include, as TYPE:key=value,... (payment, create_account, manage_data, bump_sequence). Repeatable")
	cmd.Flags().Int64Var(&baseFee, "base-fee", 100, "per-operation fee in stroops") //nolint:mnd
	cmd.Flags().StringVar(&memo, "memo", "", "text memo attached to the transaction")
	return cmd
}

// runSubmit submits request and reports its notifications on out. It returns
// the process exit code.
func runSubmit(cfg *config.Config, request lifecycle.TxRequest, out io.Writer) int {
	logger := supportlog.New()
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == config.LogFormatJSON {
		logger.UseJSONFormatter()
	}

	var approve wallet.ApproveFunc
	if cfg.Confirm {
		approve = wallet.PromptApprove
	}
	noOpDaemon := interfaces.MakeNoOpDaemon()
	capabilities, err := daemon.NewCapabilities(cfg, logger, noOpDaemon, approve)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer capabilities.Client.Close()

	exitCode := make(chan int, 1)
	controller := daemon.NewController(cfg, capabilities, logger, noOpDaemon, reporter(out, exitCode))
	defer controller.Close()

	controller.Submit(request)
	if controller.State().Phase == lifecycle.PhaseIdle {
		fmt.Fprintln(out, color.RedString("nothing to submit: at least one --op is required"))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case code := <-exitCode:
		return code
	case <-ctx.Done():
		handle, ok := controller.Handle()
		if ok {
			fmt.Fprintf(out, "interrupted, transaction %s may still land\n", handle)
		} else {
			fmt.Fprintln(out, "interrupted")
		}
		return 1
	}
}

// reporter prints every notification and sends the exit code once the lifecycle is over.
func reporter(out io.Writer, exitCode chan<- int) lifecycle.Options {
	faint := color.New(color.Faint)
	info := color.New(color.FgCyan)
	good := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)

	return lifecycle.Options{
		OnPosting: func() {
			faint.Fprintln(out, "signing and broadcasting transaction")
		},
		OnBroadcasting: func(handle string) {
			info.Fprintf(out, "broadcast %s, waiting for the ledger\n", handle)
		},
		OnSuccess: func(handle string, record lifecycle.TxRecord) {
			good.Fprintf(out, "success: %s landed in ledger %d, fee charged %d stroops\n",
				handle, record.Ledger, record.FeeCharged)
			exitCode <- 0
		},
		OnError: func(messageOrHandle string, detail any) {
			if record, ok := detail.(lifecycle.TxRecord); ok {
				bad.Fprintf(out, "failure: %s landed in ledger %d with %s (%d)\n",
					messageOrHandle, record.Ledger, xdr.TransactionResultCode(record.Code), record.Code)
			} else {
				bad.Fprintf(out, "error: %s\n", messageOrHandle)
			}
			exitCode <- 1
		},
	}
}
