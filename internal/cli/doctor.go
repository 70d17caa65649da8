package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/relaypan/internal/config"
	"github.com/ppiankov/relaypan/internal/source"
	"github.com/ppiankov/relaypan/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials, and connectivity",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

const doctorProbeTimeout = 15 * time.Second

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s (run 'relaypan init')", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		ok = false
	} else {
		printCheck(true, "config.yaml (%d subreddits, chat %d)", len(cfg.Reddit.Subreddits), cfg.Telegram.ChatID)
	}
	if cfg == nil {
		fmt.Println("\nSome checks failed.")
		return fmt.Errorf("some checks failed")
	}

	// Credentials
	if cfg.Telegram.BotToken == "" {
		printCheck(false, "bot token: env var %s is not set", cfg.Telegram.BotTokenEnv)
		ok = false
	} else {
		printCheck(true, "bot token from %s", cfg.Telegram.BotTokenEnv)
	}
	if cfg.Reddit.ClientID == "" {
		printCheck(true, "reddit credentials absent, using public listing")
	} else {
		printCheck(true, "reddit credentials from %s", cfg.Reddit.ClientIDEnv)
	}

	// Database
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		printCheck(true, "database %s (%d delivered)", cfg.Storage.Path, db.Len())
		_ = db.Close()
	}

	// Media temp dir
	if f, err := os.CreateTemp(cfg.Media.TempDir, "relaypan-doctor-*"); err != nil {
		printCheck(false, "media temp dir: %v", err)
		ok = false
	} else {
		_ = f.Close()
		_ = os.Remove(f.Name())
		printCheck(true, "media temp dir writable")
	}

	// Reddit connectivity
	ctx, cancel := context.WithTimeout(cmd.Context(), doctorProbeTimeout)
	defer cancel()
	if len(cfg.Reddit.Subreddits) > 0 {
		name := cfg.Reddit.Subreddits[0].Name
		lister, err := source.NewClient(source.Options{
			UserAgent:    cfg.Reddit.UserAgent,
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
		})
		if err != nil {
			printCheck(false, "reddit client: %v", err)
			ok = false
		} else if _, err := lister.ListNew(ctx, name, 1); err != nil {
			printCheck(false, "reddit listing r/%s: %v", name, err)
			ok = false
		} else {
			printCheck(true, "reddit listing r/%s", name)
		}
	}

	// Telegram connectivity
	if cfg.Telegram.BotToken != "" {
		if _, err := newSink(cfg); err != nil {
			printCheck(false, "telegram: %v", err)
			ok = false
		} else {
			printCheck(true, "telegram bot authorized")
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}
