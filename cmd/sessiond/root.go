package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootOptions struct {
	configFile string
	logLevel   string
	dev        bool
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "sessiond",
		Short:         "Same-origin session server for the restaurant front end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "config file (yaml, toml or json)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.BoolVar(&opts.dev, "dev", false, "console logging with colour levels")

	root.AddCommand(newServeCmd(v, opts), newConfigCmd(v, opts))
	return root
}

func newConfigCmd(v *viper.Viper, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration after files, env and flags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, opts.configFile)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
	bindServerFlags(cmd, v)
	return cmd
}
