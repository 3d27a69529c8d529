package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slatenotes/slate/internal/config"
	"github.com/slatenotes/slate/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage slate configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("remote")
		key, _ := cmd.Flags().GetString("api-key")

		home := homeDir
		if home == "" {
			home = config.DefaultHome()
		}
		path := configFile
		if path == "" {
			path = filepath.Join(home, config.FileName)
		}

		cfg := config.Defaults()
		if homeDir != "" {
			cfg.DataDir = homeDir
			cfg.Server.DatabaseURL = filepath.Join(homeDir, "server.db")
		}
		cfg.Remote.URL = url
		cfg.Remote.APIKey = key
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.WriteDefault(path, cfg); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Remote.APIKey != "" {
			cfg.Remote.APIKey = "********"
		}
		if cfg.Server.APIKey != "" {
			cfg.Server.APIKey = "********"
		}
		if cfg.Server.AuthToken != "" {
			cfg.Server.AuthToken = "********"
		}

		if used := loader.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "# from %s\n", used)
		} else {
			fmt.Fprintln(os.Stderr, "# no config file found, showing defaults and environment")
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	configInitCmd.Flags().String("remote", "", "server URL")
	configInitCmd.Flags().String("api-key", "", "server API key")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
