package youtube

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

func IsValidID(id string) bool {
	return videoIDRegex.MatchString(id)
}

// ParseVideoID accepts a bare video id or any of the common YouTube URL
// shapes and returns the id, or "" when none can be found.
func ParseVideoID(s string) string {
	s = strings.TrimSpace(s)
	if IsValidID(s) {
		return s
	}

	parsedURL, err := url.Parse(s)
	if err != nil {
		return ""
	}

	var id string
	switch strings.TrimPrefix(parsedURL.Host, "www.") {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if strings.HasPrefix(parsedURL.Path, "/embed/") {
			id = strings.TrimPrefix(parsedURL.Path, "/embed/")
		} else {
			id = parsedURL.Query().Get("v")
		}
	case "youtu.be":
		id = strings.TrimPrefix(parsedURL.Path, "/")
	}

	if IsValidID(id) {
		return id
	}
	return ""
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(id)
}

func EmbedURL(id string) string {
	return "https://www.youtube.com/embed/" + url.PathEscape(id) + "?autoplay=1"
}
