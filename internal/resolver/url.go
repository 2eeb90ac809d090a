package resolver

import (
	"fmt"
	"regexp"
)

// Matches youtube.com / m.youtube.com / youtube-nocookie.com / youtu.be links
// with watch?v=, embed/, v/ or bare-id paths. The scheme and "www." are
// optional. The first capture group is the video id.
var youtubeURLPattern = regexp.MustCompile(
	`^(?:(?:https?:)?//)?(?:(?:www|m)\.)?(?:youtube(?:-nocookie)?\.com|youtu\.be)(?:/(?:[\w\-]+\?v=|embed/|v/)?)([\w\-]+)(?:\S+)?$`,
)

// Validate reports whether url looks like a supported YouTube link.
func Validate(url string) bool {
	return youtubeURLPattern.MatchString(url)
}

// ExtractID pulls the stable video id out of a YouTube URL.
func ExtractID(url string) (string, bool) {
	m := youtubeURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// EmbedURL returns the embeddable player URL for a video id.
func EmbedURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/embed/%s", id)
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}
