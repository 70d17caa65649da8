package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/relaypan/internal/config"
	"github.com/ppiankov/relaypan/internal/media"
	"github.com/ppiankov/relaypan/internal/message"
	"github.com/ppiankov/relaypan/internal/poller"
	"github.com/ppiankov/relaypan/internal/source"
	"github.com/ppiankov/relaypan/internal/store"
	"github.com/ppiankov/relaypan/internal/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll subreddits and deliver notifications until interrupted",
	RunE:  runAction,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger()
	p, db, err := buildPoller(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}

// newSink is a variable so tests can substitute the Telegram client, whose
// constructor authorizes against the live Bot API.
var newSink = func(cfg *config.Config) (poller.Sink, error) {
	return telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, telegram.Options{
		MessagesPerSecond: cfg.Telegram.MessagesPer,
		MaxAttempts:       cfg.Telegram.MaxAttempts,
	})
}

// buildPoller wires the configured collaborators into a poller. The returned
// store must be closed by the caller once the poller is done.
func buildPoller(cfg *config.Config, log *logrus.Logger) (*poller.Poller, *store.Store, error) {
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	lister, err := source.NewClient(source.Options{
		UserAgent:    cfg.Reddit.UserAgent,
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create reddit client: %w", err)
	}

	sink, err := newSink(cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create telegram client: %w", err)
	}

	fetcher, err := media.NewFetcher(
		cfg.Reddit.UserAgent,
		int64(cfg.Media.MaxSizeMB)*1024*1024,
		cfg.Media.Timeout.Duration,
		cfg.Media.TempDir,
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create media fetcher: %w", err)
	}

	subs := make([]poller.Subreddit, 0, len(cfg.Reddit.Subreddits))
	for _, s := range cfg.Reddit.Subreddits {
		subs = append(subs, poller.Subreddit{
			Name:  s.Name,
			Limit: s.Limit,
			Every: s.Every.Duration,
		})
	}

	p, err := poller.New(poller.Config{
		Subreddits:      subs,
		Interval:        cfg.Poll.Interval.Duration,
		MaxParallel:     cfg.Poll.MaxParallel,
		SendTextPosts:   cfg.Message.SendTextPostsEnabled(),
		SkipNSFW:        cfg.Message.SkipNSFW,
		MaxStoreEntries: cfg.Storage.MaxEntries,
	}, poller.Deps{
		Lister:   lister,
		Store:    db,
		Sink:     sink,
		Acquirer: fetcher,
		Formatter: message.NewFormatter(message.Options{
			CategoryEmoji: cfg.Message.CategoryEmoji,
			CTALink:       cfg.Message.CTALink,
		}),
		Log: log,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create poller: %w", err)
	}

	return p, db, nil
}
