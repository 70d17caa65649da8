// Package classify maps a submission's raw attributes to a content category.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/relaypan/internal/source"
)

// Category is the closed set of content kinds a submission can carry.
type Category string

const (
	Text              Category = "text"
	Image             Category = "image"
	HostedVideo       Category = "hosted-video"
	GenericVideo      Category = "generic-video"
	ExternalVideoLink Category = "external-video-link"
	GenericLink       Category = "generic-link"
)

// Result is a category plus the normalized media reference, when one exists.
// For HostedVideo the reference is a downloadable MP4 or manifest URL and
// Duration holds the video length in seconds when known.
type Result struct {
	Category Category
	MediaURL string
	Duration int
}

var (
	imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	videoExts = []string{".mp4", ".webm", ".mov"}

	videoHosts = []string{
		"youtube.com",
		"youtu.be",
		"vimeo.com",
		"streamable.com",
		"twitch.tv",
		"dailymotion.com",
	}

	urlPattern = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)
)

// Classify determines the category of a submission. Rules are evaluated in
// strict priority order and the first match wins; a submission that matches
// nothing degrades to Text. Classify never fails.
func Classify(sub source.Submission) Result {
	if ref, duration := hostedVideoRef(sub); ref != "" {
		return Result{Category: HostedVideo, MediaURL: ref, Duration: duration}
	}

	if ref := externalVideoRef(sub); ref != "" {
		return Result{Category: ExternalVideoLink, MediaURL: ref}
	}

	if ref := imageRef(sub); ref != "" {
		return Result{Category: Image, MediaURL: ref}
	}

	if !sub.IsSelf && hasExt(sub.URL, videoExts) {
		return Result{Category: GenericVideo, MediaURL: unescapeAmp(sub.URL)}
	}

	if ref := genericLinkRef(sub); ref != "" {
		return Result{Category: GenericLink, MediaURL: ref}
	}

	return Result{Category: Text}
}

// hostedVideoRef finds a reddit-hosted video reference, in the same order the
// listing exposes them: the media object, a bare v.redd.it link, gallery
// metadata, then the video preview.
func hostedVideoRef(sub source.Submission) (string, int) {
	if sub.Media != nil && sub.Media.RedditVideo != nil && sub.Media.RedditVideo.FallbackURL != "" {
		rv := sub.Media.RedditVideo
		return normalizeVideoURL(rv.FallbackURL), rv.Duration
	}

	if sub.IsVideo && strings.Contains(sub.URL, "v.redd.it") {
		return strings.TrimSuffix(sub.URL, "/") + "/DASH_720.mp4", 0
	}

	for _, key := range sortedKeys(sub.MediaMetadata) {
		entry := sub.MediaMetadata[key]
		if entry.E != "RedditVideo" {
			continue
		}
		if entry.HLSURL != "" {
			return normalizeVideoURL(entry.HLSURL), 0
		}
		if entry.DashURL != "" {
			return normalizeVideoURL(entry.DashURL), 0
		}
	}

	if sub.Preview != nil && sub.Preview.RedditVideoPreview != nil && sub.Preview.RedditVideoPreview.FallbackURL != "" {
		rv := sub.Preview.RedditVideoPreview
		return normalizeVideoURL(rv.FallbackURL), rv.Duration
	}

	return "", 0
}

func externalVideoRef(sub source.Submission) string {
	if !sub.IsSelf && hostedBy(sub.URL, videoHosts) {
		return sub.URL
	}
	for _, u := range urlPattern.FindAllString(sub.SelfText, -1) {
		if hostedBy(u, videoHosts) {
			return u
		}
	}
	return ""
}

// imageRef finds an image reference by descending quality: gallery metadata
// (best source, then original, then largest preview), a direct image URL,
// then the preview source image.
func imageRef(sub source.Submission) string {
	for _, key := range sortedKeys(sub.MediaMetadata) {
		entry := sub.MediaMetadata[key]
		if entry.E != "Image" {
			continue
		}
		if entry.S != nil && entry.S.U != "" {
			return unescapeAmp(entry.S.U)
		}
		if u := largestPreview(entry.P); u != "" {
			return unescapeAmp(u)
		}
	}

	if !sub.IsSelf && hasExt(sub.URL, imageExts) {
		return unescapeAmp(sub.URL)
	}

	if sub.Preview != nil && len(sub.Preview.Images) > 0 {
		if u := sub.Preview.Images[0].Source.URL; u != "" {
			return unescapeAmp(u)
		}
	}

	return ""
}

func genericLinkRef(sub source.Submission) string {
	if !sub.IsSelf && sub.URL != "" {
		return sub.URL
	}
	if m := urlPattern.FindString(sub.SelfText); m != "" {
		return m
	}
	return ""
}

func largestPreview(previews []source.MediaMetaSource) string {
	best := ""
	bestArea := -1
	for _, p := range previews {
		area := p.X * p.Y
		if p.U != "" && area > bestArea {
			best = p.U
			bestArea = area
		}
	}
	return best
}

// normalizeVideoURL strips query parameters from direct MP4 URLs. HLS and
// DASH manifest URLs keep theirs, the playlists are unusable without them.
func normalizeVideoURL(u string) string {
	u = unescapeAmp(u)
	if strings.Contains(u, "HLSPlaylist.m3u8") || strings.Contains(u, "DASHPlaylist.mpd") {
		return u
	}
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func hasExt(u string, exts []string) bool {
	lower := strings.ToLower(u)
	if i := strings.IndexByte(lower, '?'); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func hostedBy(u string, hosts []string) bool {
	lower := strings.ToLower(u)
	for _, host := range hosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

// unescapeAmp undoes the HTML entity escaping Reddit applies to media URLs.
func unescapeAmp(u string) string {
	return strings.ReplaceAll(u, "&amp;", "&")
}

func sortedKeys(m map[string]source.MediaMetaEntry) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
