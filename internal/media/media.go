package media

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultFileName is used when a title sanitises to nothing.
const DefaultFileName = "audio.mp3"

// ErrNotAudio is returned when a produced file does not look like audio.
var ErrNotAudio = errors.New("output is not an audio file")

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// FormatDuration renders seconds as h:mm:ss, or m:ss under an hour.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	hrs := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	if hrs > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hrs, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// FormatFileSize renders a byte count in 1024-based units with one decimal,
// labelled B, KB or MB (e.g. "4.2 MB"). Sizes past a gigabyte stay in MB.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes < 0:
		return "0 B"
	case bytes < humanize.KiByte:
		return strconv.FormatInt(bytes, 10) + " B"
	case bytes < humanize.MiByte:
		return humanize.FormatFloat("#.#", float64(bytes)/humanize.KiByte) + " KB"
	default:
		return humanize.FormatFloat("#.#", float64(bytes)/humanize.MiByte) + " MB"
	}
}

// SanitizeFilename strips characters that are unsafe in a download name,
// joins words with underscores and caps the length at 100.
func SanitizeFilename(name string) string {
	cleaned := nonWord.ReplaceAllString(name, "")
	cleaned = whitespace.ReplaceAllString(strings.TrimSpace(cleaned), "_")
	if len(cleaned) > 100 {
		cleaned = cleaned[:100]
	}
	return cleaned
}

// FileNameForTitle builds the attachment name for a converted title.
func FileNameForTitle(title string) string {
	base := SanitizeFilename(title)
	if base == "" {
		return DefaultFileName
	}
	return base + ".mp3"
}

// ValidateAudioFile checks that path exists, is non-empty and sniffs as audio.
// It returns the file size.
func ValidateAudioFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() || info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrNotAudio, path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return 0, fmt.Errorf("detect type of %s: %w", path, err)
	}
	if !isAudio(mtype) {
		return 0, fmt.Errorf("%w: %s detected as %s", ErrNotAudio, path, mtype.String())
	}
	return info.Size(), nil
}

func isAudio(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
	}
	return false
}
