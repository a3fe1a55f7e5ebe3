package extractor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
)

var rePct = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)

// YtDlp runs yt-dlp as a subprocess.
type YtDlp struct {
	binary string
	logger *slog.Logger
}

// NewYtDlp creates the extractor. An empty binary means "yt-dlp" on PATH.
func NewYtDlp(binary string, logger *slog.Logger) *YtDlp {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	return &YtDlp{binary: binary, logger: logging.Component(logger, "extractor")}
}

// CheckAvailable reports whether the binary can be found.
func (y *YtDlp) CheckAvailable() error {
	if _, err := exec.LookPath(y.binary); err != nil {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", y.binary)
	}
	return nil
}

// FetchInfo prints the title and duration without downloading.
func (y *YtDlp) FetchInfo(ctx context.Context, sourceURL string) (Info, error) {
	cmd := exec.CommandContext(ctx, y.binary,
		"--print", "%(title)s",
		"--print", "%(duration)s",
		"--no-playlist",
		"--no-warnings",
		sourceURL,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("yt-dlp info failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseInfo(stdout.String())
}

func parseInfo(output string) (Info, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return Info{}, fmt.Errorf("yt-dlp info: unexpected output %q", output)
	}
	title := strings.TrimSpace(lines[0])
	if title == "" {
		return Info{}, errors.New("yt-dlp info: empty title")
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
	if err != nil {
		// Live streams and some extractors print "NA".
		duration = 0
	}
	return Info{Title: title, DurationSeconds: duration}, nil
}

// Produce extracts the audio track as MP3 at the requested quality.
func (y *YtDlp) Produce(ctx context.Context, req Request, events chan<- Event) error {
	if strings.TrimSpace(req.SourceURL) == "" {
		return errors.New("source URL is required")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return errors.New("output path is required")
	}

	err := y.run(ctx, produceArgs(req), func(line string) {
		if ev, ok := ParseLine(line); ok {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
	})
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(req.OutputPath); statErr != nil {
		return fmt.Errorf("%w: %s", ErrNoOutput, req.OutputPath)
	}
	return nil
}

// produceArgs builds the extraction command line. --no-mtime keeps the
// source's Last-Modified date off the output so the temp sweeper sees the
// artifact's real age.
func produceArgs(req Request) []string {
	return []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", req.Quality.ExtractorLevel(),
		"-o", outputTemplate(req.OutputPath),
		"--no-playlist",
		"--no-mtime",
		"--newline",
		"--progress",
		req.SourceURL,
	}
}

// outputTemplate lets yt-dlp choose the intermediate extension while the
// final extracted file lands on path.
func outputTemplate(path string) string {
	ext := ".mp3"
	if strings.HasSuffix(path, ext) {
		return strings.TrimSuffix(path, ext) + ".%(ext)s"
	}
	return path
}

// ParseLine turns one line of yt-dlp output into a progress event.
func ParseLine(line string) (Event, bool) {
	l := strings.TrimSpace(line)
	if l == "" {
		return Event{}, false
	}
	if strings.HasPrefix(l, "[ExtractAudio]") || strings.Contains(l, "Post-process") {
		return Event{Stage: StagePostProcess}, true
	}
	if strings.HasPrefix(l, "[download]") {
		m := rePct.FindStringSubmatch(l)
		if len(m) < 2 {
			return Event{}, false
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Event{}, false
		}
		if pct > 100 {
			pct = 100
		}
		return Event{Stage: StageDownload, Percent: pct}, true
	}
	return Event{}, false
}

func (y *YtDlp) run(ctx context.Context, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, y.binary, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(r io.Reader, keep bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			if keep {
				mu.Lock()
				appendLimited(&errBuf, line)
				mu.Unlock()
			}
			onLine(line)
		}
	}

	wg.Add(2)
	go read(stdoutPipe, false)
	go read(stderrPipe, true)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		y.logger.Warn("yt-dlp exited with error", logging.Error(err), logging.String("stderr", strings.TrimSpace(errBuf.String())))
		return fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(b *strings.Builder, line string) {
	const maxKeep = 8192
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	if remain := maxKeep - b.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
