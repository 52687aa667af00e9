// Package main implements hiectl, the command-line entry point for the
// federation service: a responder HTTP listener and a handful of
// one-shot operational commands, mirroring wardle-concierge-old's
// cmd/{root,serve}.go subcommand layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hiectl",
	Short: "hiectl runs and operates the IHE XCPD/XCA federation gateway",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.hiectl.yaml)")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string")
	viper.BindPFlag("database-url", rootCmd.PersistentFlags().Lookup("database-url"))
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address for the zip-neighbor cache")
	viper.BindPFlag("redis-addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	rootCmd.PersistentFlags().String("client-cert", "", "path to the client TLS certificate (cqcert.crt)")
	viper.BindPFlag("client-cert", rootCmd.PersistentFlags().Lookup("client-cert"))
	rootCmd.PersistentFlags().String("client-key", "", "path to the client TLS private key (cqkey.key)")
	viper.BindPFlag("client-key", rootCmd.PersistentFlags().Lookup("client-key"))
	rootCmd.PersistentFlags().String("trusted-cas", "", "path to the trusted CA bundle (trusted.pem)")
	viper.BindPFlag("trusted-cas", rootCmd.PersistentFlags().Lookup("trusted-cas"))
	rootCmd.PersistentFlags().String("sender-hcid", "", "this gateway's home community id")
	viper.BindPFlag("sender-hcid", rootCmd.PersistentFlags().Lookup("sender-hcid"))
	rootCmd.PersistentFlags().String("issuer-subject", "", "issuer subject DN embedded in outbound SAML assertions")
	viper.BindPFlag("issuer-subject", rootCmd.PersistentFlags().Lookup("issuer-subject"))
	rootCmd.PersistentFlags().Bool("pretty-log", false, "console-format logs instead of JSON")
	viper.BindPFlag("pretty-log", rootCmd.PersistentFlags().Lookup("pretty-log"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
		}
	}
}
