package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakanhub/sakan-go"
)

// openApp builds a client and app from the stored config. Most commands run
// poll-only: they are one-shot, so the realtime feed adds nothing.
func openApp(cmd *cobra.Command) (*sakan.App, func(), error) {
	return openAppWith(cmd, &sakan.AppOptions{DisableRealtime: true})
}

// openLiveApp keeps the realtime feed on, for commands that stream changes.
func openLiveApp(cmd *cobra.Command) (*sakan.App, func(), error) {
	return openAppWith(cmd, nil)
}

func openAppWith(cmd *cobra.Command, opts *sakan.AppOptions) (*sakan.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var clientOpts []sakan.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, sakan.WithBaseURL(cfg.BaseURL))
	}
	client := sakan.NewClient(cfg.AccessToken, clientOpts...)

	cacheDir, err := cfg.defaultCacheDir()
	if err != nil {
		return nil, nil, err
	}
	cache, err := sakan.NewFileCache(cacheDir)
	if err != nil {
		return nil, nil, err
	}

	app := sakan.NewApp(client, cache, opts)
	cleanup := func() {
		if err := app.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
	}
	return app, cleanup, nil
}

func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// printTable renders rows with aligned columns.
func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&b, "%-*s  ", widths[i], h)
	}
	fmt.Println(strings.TrimRight(b.String(), " "))

	for _, row := range rows {
		b.Reset()
		for i, cell := range row {
			fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
		}
		fmt.Println(strings.TrimRight(b.String(), " "))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
