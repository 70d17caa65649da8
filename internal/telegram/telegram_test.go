package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// fakeSender scripts Send outcomes: one entry per expected call.
type fakeSender struct {
	results []error
	sent    []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if len(f.results) == 0 {
		return tgbotapi.Message{}, nil
	}
	err := f.results[0]
	f.results = f.results[1:]
	return tgbotapi.Message{}, err
}

func newTestClient(t *testing.T, fake *fakeSender, maxAttempts int) *Client {
	t.Helper()
	c, err := newClient(fake, -100123, Options{
		MessagesPerSecond: 1000, // effectively unlimited in tests
		MaxAttempts:       maxAttempts,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.initialBackoff = time.Millisecond
	return c
}

func rateLimitErr(after int) error {
	return &tgbotapi.Error{
		Code:    429,
		Message: "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{
			RetryAfter: after,
		},
	}
}

func TestNewClient_Invalid(t *testing.T) {
	if _, err := newClient(&fakeSender{}, 0, Options{}); err == nil {
		t.Fatal("expected error for missing chat id")
	}
}

func TestSendText_Success(t *testing.T) {
	fake := &fakeSender{}
	c := newTestClient(t, fake, 3)

	if err := c.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.sent))
	}

	msg, ok := fake.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("payload type = %T, want MessageConfig", fake.sent[0])
	}
	if msg.Text != "hello" {
		t.Errorf("text = %q, want hello", msg.Text)
	}
	if msg.ParseMode != tgbotapi.ModeMarkdown {
		t.Errorf("parse mode = %q, want markdown", msg.ParseMode)
	}
	if msg.ChatID != -100123 {
		t.Errorf("chat id = %d, want -100123", msg.ChatID)
	}
}

func TestSend_RetriesRateLimitThenSucceeds(t *testing.T) {
	fake := &fakeSender{results: []error{rateLimitErr(0), rateLimitErr(0), nil}}
	c := newTestClient(t, fake, 5)

	if err := c.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if len(fake.sent) != 3 {
		t.Fatalf("sent %d times, want 3 (two throttled attempts then success)", len(fake.sent))
	}
}

func TestSend_RateLimitExhausted(t *testing.T) {
	fake := &fakeSender{results: []error{rateLimitErr(0), rateLimitErr(0), rateLimitErr(0)}}
	c := newTestClient(t, fake, 3)

	err := c.SendText(context.Background(), "hello")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if len(fake.sent) != 3 {
		t.Fatalf("sent %d times, want exactly the attempt budget of 3", len(fake.sent))
	}
}

func TestSend_RejectedIsTerminal(t *testing.T) {
	fake := &fakeSender{results: []error{&tgbotapi.Error{Code: 400, Message: "Bad Request: wrong file"}}}
	c := newTestClient(t, fake, 5)

	err := c.SendText(context.Background(), "hello")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d times, want 1 (no retry on rejection)", len(fake.sent))
	}
}

func TestSend_ServerErrorRetries(t *testing.T) {
	fake := &fakeSender{results: []error{&tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, nil}}
	c := newTestClient(t, fake, 3)

	if err := c.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if len(fake.sent) != 2 {
		t.Fatalf("sent %d times, want 2", len(fake.sent))
	}
}

func TestSend_NetworkErrorRetries(t *testing.T) {
	fake := &fakeSender{results: []error{errors.New("connection reset"), nil}}
	c := newTestClient(t, fake, 3)

	if err := c.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if len(fake.sent) != 2 {
		t.Fatalf("sent %d times, want 2", len(fake.sent))
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	fake := &fakeSender{results: []error{rateLimitErr(0), rateLimitErr(0)}}
	c := newTestClient(t, fake, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.SendText(ctx, "hello")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSendPhotoAndVideoPayloads(t *testing.T) {
	fake := &fakeSender{}
	c := newTestClient(t, fake, 3)
	ctx := context.Background()

	if err := c.SendPhotoURL(ctx, "https://i.redd.it/pic.jpg", "caption"); err != nil {
		t.Fatalf("send photo: %v", err)
	}
	if err := c.SendVideoFile(ctx, "/tmp/clip.mp4", "caption"); err != nil {
		t.Fatalf("send video: %v", err)
	}

	photo, ok := fake.sent[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("payload type = %T, want PhotoConfig", fake.sent[0])
	}
	if photo.Caption != "caption" || photo.ParseMode != tgbotapi.ModeMarkdown {
		t.Errorf("photo caption/mode = %q/%q", photo.Caption, photo.ParseMode)
	}

	video, ok := fake.sent[1].(tgbotapi.VideoConfig)
	if !ok {
		t.Fatalf("payload type = %T, want VideoConfig", fake.sent[1])
	}
	if video.Caption != "caption" {
		t.Errorf("video caption = %q", video.Caption)
	}
}

func TestRateCeiling(t *testing.T) {
	fake := &fakeSender{}
	c, err := newClient(fake, 42, Options{MessagesPerSecond: 20, MaxAttempts: 1})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := c.SendText(context.Background(), "x"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	// 4 sends at 20/s with burst 1: three limiter waits of 50ms each.
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Errorf("4 sends took %v, limiter should have enforced ~150ms", elapsed)
	}
}
