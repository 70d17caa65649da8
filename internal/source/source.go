// Package source fetches new submissions from Reddit's listing API.
package source

import (
	"context"
	"time"
)

// Submission is one item fetched from a subreddit. Immutable after fetch.
type Submission struct {
	Name        string    // fullname, e.g. "t3_abc123"; stable across polls
	Subreddit   string    // subreddit the submission was fetched from
	Title       string
	Author      string
	SelfText    string // body text, empty for link posts
	URL         string // target URL; self posts link back to reddit
	Permalink   string // absolute link to the comments page
	IsSelf      bool
	IsVideo     bool
	Over18      bool
	Score       int
	NumComments int
	CreatedAt   time.Time

	Media         *Media                    // reddit-hosted media, if any
	Preview       *Preview                  // preview images / video, if any
	MediaMetadata map[string]MediaMetaEntry // gallery / embedded media, if any
}

// Media mirrors the "media" object on a listing child.
type Media struct {
	RedditVideo *RedditVideo `json:"reddit_video"`
}

// RedditVideo is a natively hosted video manifest reference.
type RedditVideo struct {
	FallbackURL string `json:"fallback_url"`
	HLSURL      string `json:"hls_url"`
	DashURL     string `json:"dash_url"`
	Duration    int    `json:"duration"`
	IsGIF       bool   `json:"is_gif"`
}

// Preview mirrors the "preview" object on a listing child.
type Preview struct {
	Images             []PreviewImage `json:"images"`
	RedditVideoPreview *RedditVideo   `json:"reddit_video_preview"`
}

type PreviewImage struct {
	Source PreviewSource `json:"source"`
}

type PreviewSource struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MediaMetaEntry is one entry of "media_metadata" (galleries, embedded
// images and videos). E is the element kind: "Image" or "RedditVideo".
type MediaMetaEntry struct {
	E       string           `json:"e"`
	S       *MediaMetaSource `json:"s"`
	HLSURL  string           `json:"hlsUrl"`
	DashURL string           `json:"dashUrl"`
	P       []MediaMetaSource `json:"p"`
}

type MediaMetaSource struct {
	U string `json:"u"`
	X int    `json:"x"`
	Y int    `json:"y"`
}

// Lister lists the newest submissions of a named subreddit.
type Lister interface {
	// ListNew returns up to limit newest submissions, newest first.
	ListNew(ctx context.Context, subreddit string, limit int) ([]Submission, error)
}
