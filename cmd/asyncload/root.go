package main

import (
	"fmt"
	"io"

	"github.com/Swind/go-async-loader/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	v          *viper.Viper
	configFile string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.v, o.configFile)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "asyncload",
		Short:         "Load images in the background and apply them on an owner goroutine",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config-file", "", "YAML config file.")
	if err := config.BindFlags(cmd.PersistentFlags(), opts.v); err != nil {
		// Flag names are static; a failure here is a programming error.
		panic(err)
	}

	cmd.AddCommand(newLoadCmd(opts), newConfigCmd(opts))
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	}
}

func writeYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error while encoding the config: %w", err)
	}
	return enc.Close()
}
