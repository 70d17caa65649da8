// Package telegram delivers notifications to a chat via the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const defaultInitialBackoff = 2 * time.Second

// Delivery failure kinds the caller can branch on with errors.Is.
// ErrRejected is terminal for a submission; ErrRateLimited means every
// attempt within the budget was throttled and the send may be retried later.
var (
	ErrRejected    = errors.New("telegram: rejected")
	ErrRateLimited = errors.New("telegram: rate limited")
)

// sender is the slice of tgbotapi.BotAPI the client depends on.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Options configures the delivery client.
type Options struct {
	// MessagesPerSecond caps the outbound send rate for the whole client.
	MessagesPerSecond float64
	// MaxAttempts bounds the retries of one send when throttled.
	MaxAttempts int
}

// Client sends text, photo and video notifications to one chat, honoring the
// sink's rate ceiling. All sends across all callers share one limiter.
type Client struct {
	api            sender
	chatID         int64
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
}

// NewClient authorizes against the Bot API and returns a delivery client.
func NewClient(token string, chatID int64, opts Options) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize bot: %w", err)
	}
	return newClient(bot, chatID, opts)
}

func newClient(api sender, chatID int64, opts Options) (*Client, error) {
	if chatID == 0 {
		return nil, errors.New("telegram: chat id is required")
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Client{
		api:            api,
		chatID:         chatID,
		limiter:        rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), 1),
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: defaultInitialBackoff,
	}, nil
}

// SendText delivers a markdown text message.
func (c *Client) SendText(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return c.send(ctx, msg)
}

// SendPhotoURL delivers a photo by remote URL with a markdown caption.
func (c *Client) SendPhotoURL(ctx context.Context, photoURL, caption string) error {
	msg := tgbotapi.NewPhoto(c.chatID, tgbotapi.FileURL(photoURL))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeMarkdown
	return c.send(ctx, msg)
}

// SendVideoFile uploads a local video file with a markdown caption. The sink
// is not guaranteed to render remote video URLs, so video always uploads bytes.
func (c *Client) SendVideoFile(ctx context.Context, path, caption string) error {
	msg := tgbotapi.NewVideo(c.chatID, tgbotapi.FilePath(path))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeMarkdown
	return c.send(ctx, msg)
}

// send pushes one payload through the limiter, retrying throttled attempts
// with exponential backoff up to the attempt budget.
func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		_, err := c.api.Send(msg)
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.Code == 429:
				if after := apiErr.RetryAfter; after > 0 {
					if serr := sleepCtx(ctx, time.Duration(after)*time.Second); serr != nil {
						return backoff.Permanent(serr)
					}
				}
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			case apiErr.Code >= 500:
				return fmt.Errorf("%w: status %d: %v", ErrRateLimited, apiErr.Code, err)
			default:
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrRejected, err))
			}
		}

		// Network-level failure: retryable.
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}, policy)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
