package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	supportlog "github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/config"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon"
)

func main() {
	var cfg config.Config

	loadConfig := func() {
		if err := cfg.SetValues(os.LookupEnv); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	serve := func(_ *cobra.Command, _ []string) {
		loadConfig()
		daemon.MustNew(&cfg, supportlog.New()).Run()
	}

	rootCmd := &cobra.Command{
		Use:   "stellar-txtracker",
		Short: "Submit Stellar transactions and track them until they are final",
		Run:   serve,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON RPC server (default)",
		Run:   serve,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		Run: func(_ *cobra.Command, _ []string) {
			if config.CommitHash == "" {
				fmt.Printf("stellar-txtracker dev\n")
			} else {
				// avoid printing the branch for the main branch
				// ( since that's what the end-user would typically have )
				// but keep it for internal build ( so that we'll know from which branch it
				// was built )
				branch := config.Branch
				if branch == "main" {
					branch = ""
				}
				fmt.Printf("stellar-txtracker %s (%s) %s\n", config.Version, config.CommitHash, branch)
			}
			if config.BuildTimestamp != "" {
				fmt.Printf("built %s\n", config.BuildTimestamp)
			}
		},
	}

	configTemplateCmd := &cobra.Command{
		Use:   "config-template",
		Short: "Print a TOML configuration file with the current settings",
		Run: func(_ *cobra.Command, _ []string) {
			if err := cfg.SetValues(os.LookupEnv); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			out, err := cfg.MarshalTOML()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(string(out))
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd, configTemplateCmd, newSubmitCmd(&cfg, loadConfig))

	if err := cfg.AddFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "could not parse config options: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
