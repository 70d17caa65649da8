package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/relaypan/internal/config"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll cycle and exit",
	RunE:  onceAction,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func onceAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	p, db, err := buildPoller(cfg, newLogger())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	p.RunCycle(cmd.Context())
	return nil
}
