package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/relaypan/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
		return nil
	}
	fmt.Printf("Initialized %s. Edit %s and set the referenced env vars before running.\n", configDir, configPath)
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# relaypan configuration

reddit:
  user_agent: "relaypan/1.0"
  # Optional script-app credentials; without them the public JSON
  # listing is used, which is rate limited more aggressively.
  client_id_env: REDDIT_CLIENT_ID
  client_secret_env: REDDIT_CLIENT_SECRET
  subreddits:
    - name: golang
      limit: 10
      every: 5m
    # - name: programming
    #   limit: 25
    #   every: 15m

poll:
  interval: 5m
  max_parallel: 4

telegram:
  bot_token_env: TELEGRAM_BOT_TOKEN
  chat_id: 0 # set to the target chat id
  messages_per_second: 1
  max_attempts: 5

message:
  category_emoji: true
  cta_link: ""
  send_text_posts: true
  skip_nsfw: false

media:
  max_size_mb: 50
  timeout: 2m

storage:
  path: .relaypan/relaypan.db
  max_entries: 0 # 0 = unbounded
`
