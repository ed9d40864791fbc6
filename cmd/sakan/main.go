// Command sakan is a terminal companion for the Sakan housing platform:
// browse listings, manage bookings and favorites, chat with support, and
// administer platform settings.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "sakan",
		Short:        "Sakan student housing CLI",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		newInitCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newListingsCmd(),
		newBookingsCmd(),
		newFavoritesCmd(),
		newChatCmd(),
		newSettingsCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <access-token>",
		Short: "Store an access token and create the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.AccessToken = args[0]
			if err := saveConfig(cfg); err != nil {
				return err
			}
			path, _ := configPath()
			fmt.Printf("Config written to %s\n", path)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change CLI configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("base_url:     %s\n", orDefault(cfg.BaseURL, "(default)"))
			fmt.Printf("access_token: %s\n", maskToken(cfg.AccessToken))
			fmt.Printf("cache_dir:    %s\n", orDefault(cfg.CacheDir, "(default)"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			return saveConfig(cfg)
		},
	})

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who you are signed in as and whether the API is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sess := app.Session()
			fmt.Printf("User:   %s\n", orDefault(sess.UserID, "(guest)"))
			fmt.Printf("Role:   %s\n", sess.Role)
			fmt.Printf("Status: %s\n", sess.Status)

			if err := app.Settings.Refresh(cmd.Context(), true); err != nil {
				fmt.Printf("API:    unreachable (%v)\n", err)
				return nil
			}
			fmt.Println("API:    ok")
			return nil
		},
	}
}
