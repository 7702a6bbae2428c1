package transport

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

func formatChatID(id int64) string { return strconv.FormatInt(id, 10) }

// ParseChatID converts a registry address back into a numeric chat id.
func ParseChatID(addr string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(addr), 10, 64)
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

var videoExt = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".m4v":  true,
	".3gp":  true,
}

// MediaKindOf guesses whether a media URL points to a video or a still image.
func MediaKindOf(raw string) MediaKind {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	if videoExt[strings.ToLower(path.Ext(p))] {
		return MediaVideo
	}
	return MediaImage
}
