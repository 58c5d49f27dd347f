package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pypackstudio/pypack/internal/config"
	"github.com/pypackstudio/pypack/internal/profile"
)

// profileStorePath overrides the profile document location; empty means the
// platform default.
var profileStorePath string

func openStore() (*profile.Store, error) {
	return profile.Open(profileStorePath, logger)
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved build profiles",
	}
	cmd.PersistentFlags().StringVar(&profileStorePath, "store", "", "Profile store file (default: user config directory)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List profile names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore()
				if err != nil {
					return err
				}
				names, err := store.List()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show NAME",
			Short: "Print a profile as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore()
				if err != nil {
					return err
				}
				cfg, err := store.Get(args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			},
		},
		newProfileWriteCmd("save", "Save a profile, replacing any existing one", (*profile.Store).Save),
		newProfileWriteCmd("create", "Create a profile; fails if the name exists", (*profile.Store).Create),
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore()
				if err != nil {
					return err
				}
				return store.Delete(args[0])
			},
		},
		&cobra.Command{
			Use:   "export FILE",
			Short: "Write every profile to a JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore()
				if err != nil {
					return err
				}
				return store.Export(args[0])
			},
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Replace every profile with the contents of a JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore()
				if err != nil {
					return err
				}
				return store.Import(args[0])
			},
		},
	)
	return cmd
}

// newProfileWriteCmd builds save/create: the profile is the config the build
// flags describe, so "profile save NAME --entry app.py" mirrors "build".
func newProfileWriteCmd(use, short string, write func(*profile.Store, string, config.BuildConfig) error) *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd, "")
			if err != nil {
				return configError(err)
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := write(store, args[0], cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), colSuccess.Sprintf("profile %q saved to %s", args[0], store.Path()))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
