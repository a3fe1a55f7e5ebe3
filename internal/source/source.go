package source

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidURL is returned for references that are not a supported video URL.
	ErrInvalidURL = errors.New("invalid source URL")
	// ErrNoContentKey is returned when no video identifier can be extracted.
	ErrNoContentKey = errors.New("could not extract video ID from URL")
)

var (
	supportedURL = regexp.MustCompile(`^(https?://)?(www\.|m\.|music\.)?(youtube\.com/(watch\?|embed/|v/|shorts/)|youtu\.be/)[\w-]+`)
	idPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/v/|youtube\.com/shorts/)([\w-]{11})`),
	}
)

// Reference is a validated source with its stable content key.
type Reference struct {
	URL        string
	ContentKey string
}

// Parse validates raw and derives its content key (the 11 character video ID).
func Parse(raw string) (Reference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reference{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !supportedURL.MatchString(trimmed) {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidURL, trimmed)
	}
	withScheme := trimmed
	if !strings.HasPrefix(withScheme, "http://") && !strings.HasPrefix(withScheme, "https://") {
		withScheme = "https://" + withScheme
	}
	if _, err := url.ParseRequestURI(withScheme); err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	key, err := ContentKey(withScheme)
	if err != nil {
		return Reference{}, err
	}
	return Reference{URL: withScheme, ContentKey: key}, nil
}

// ContentKey extracts the video identifier from a supported URL.
func ContentKey(raw string) (string, error) {
	for _, pattern := range idPatterns {
		if m := pattern.FindStringSubmatch(raw); len(m) > 1 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNoContentKey, raw)
}
