package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mnemod/mnemod/internal/config"
	"github.com/mnemod/mnemod/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configInitCmd())
	return cmd
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (store: %s, listen: %s)\n",
				cfg.Store.Path, cfg.Gateway.Listen)
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a starter configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("output")
			return runInitWizard(out)
		},
	}
	cmd.Flags().StringP("output", "o", "mnemod.yaml", "Where to write the configuration")
	return cmd
}

func runInitWizard(out string) error {
	dbPath := filepath.Join(app.DefaultDataDir(), "mnemod.db")
	listen := "127.0.0.1:8077"
	var token string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Database path").
				Description("SQLite file holding the memory records.").
				Value(&dbPath),
			huh.NewInput().
				Title("Listen address").
				Description("host:port for the HTTP gateway.").
				Value(&listen),
			huh.NewInput().
				Title("Auth token").
				Description("Bearer token for the gateway. Leave empty to disable auth.").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Store.Path = dbPath
	cfg.Gateway.Listen = listen
	cfg.Gateway.AuthToken = token
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if _, err := os.Stat(out); err == nil {
		var overwrite bool
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite?", out)).
			Value(&overwrite)
		if err := confirm.Run(); err != nil {
			return err
		}
		if !overwrite {
			return nil
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// The file may hold the auth token; keep it private.
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", out)
	return nil
}
