package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/convert"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/handlers"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/jobs"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/metrics"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/preview"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/queue"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/source"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/storage"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

type fakeService struct {
	mu          sync.Mutex
	jobs        map[string]jobs.Job
	submission  convert.Submission
	submitErr   error
	lastURL     string
	lastQuality string
	gets        int
}

func newFakeService() *fakeService {
	return &fakeService{jobs: make(map[string]jobs.Job)}
}

func (f *fakeService) Submit(_ context.Context, rawURL, rawQuality string) (convert.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURL, f.lastQuality = rawURL, rawQuality
	return f.submission, f.submitErr
}

func (f *fakeService) Get(id string) (jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	job, ok := f.jobs[id]
	if !ok {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	return job, nil
}

func (f *fakeService) QueueStats() queue.Stats {
	return queue.Stats{MaxConcurrent: 3, Active: 1, Waiting: []string{"w1"}}
}

func (f *fakeService) JobCounts() map[types.Status]int {
	return map[types.Status]int{types.StatusReady: 2}
}

func (f *fakeService) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeService) put(job jobs.Job) {
	f.mu.Lock()
	f.jobs[job.ID] = job
	f.mu.Unlock()
}

type fakeHistory struct {
	records []storage.HistoryRecord
	limit   int
}

func (h *fakeHistory) List(_ context.Context, limit int) ([]storage.HistoryRecord, error) {
	h.limit = limit
	return h.records, nil
}

type staticLogs []string

func (l staticLogs) Lines() []string { return l }

func newApp(t *testing.T, svc *fakeService, history handlers.HistoryLister) *fiber.App {
	t.Helper()
	return handlers.NewApp(handlers.AppOptions{
		Service:        svc,
		Slicer:         preview.New(1, 1), // 125 byte budget
		History:        history,
		Logs:           staticLogs{"line one", "line two"},
		Metrics:        metrics.New().Handler(),
		Client:         handlers.ClientSettings{PollIntervalMs: 1000},
		StreamInterval: 10 * time.Millisecond,
	})
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, body
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, body []byte) handlers.ErrorResponse {
	t.Helper()
	var e handlers.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return e
}

func writeArtifact(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "artifact.mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func readyJob(id, path string) jobs.Job {
	return jobs.Job{
		ID:           id,
		Status:       types.StatusReady,
		Progress:     100,
		FileName:     "My_Song.mp3",
		ArtifactPath: path,
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode string
	}{
		{name: "malformed body", body: `{"sourceUrl":`, wantCode: handlers.CodeInvalidBody},
		{name: "missing url", body: `{"quality":"128"}`, wantCode: handlers.CodeNoURL},
		{name: "invalid url", body: `{"sourceUrl":"https://example.com"}`, err: source.ErrInvalidURL, wantCode: handlers.CodeInvalidURL},
		{name: "no video id", body: `{"sourceUrl":"https://youtu.be/x"}`, err: fmt.Errorf("wrapped: %w", source.ErrNoContentKey), wantCode: handlers.CodeNoVideoID},
		{name: "bad quality", body: `{"sourceUrl":"https://youtu.be/dQw4w9WgXcQ","quality":"64"}`, err: types.ErrUnknownQuality, wantCode: handlers.CodeInvalidQuality},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.submitErr = tt.err
			app := newApp(t, svc, nil)

			resp, body := do(t, app, postJSON("/convert", tt.body))
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", resp.StatusCode, body)
			}
			if got := decodeError(t, body); got.Code != tt.wantCode || got.Error == "" {
				t.Fatalf("unexpected error body %+v", got)
			}
		})
	}
}

func TestSubmitQueued(t *testing.T) {
	svc := newFakeService()
	svc.submission = convert.Submission{Job: jobs.Job{
		ID:            "job-q",
		Status:        types.StatusQueued,
		QueuePosition: 1,
		EstimatedWait: "~30 seconds",
	}}
	app := newApp(t, svc, nil)

	resp, body := do(t, app, postJSON("/api/convert", `{"youtubeUrl":"https://youtu.be/dQw4w9WgXcQ","quality":"192"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["id"] != "job-q" || got["status"] != "queued" || got["queuePosition"] != float64(1) || got["estimatedWait"] != "~30 seconds" {
		t.Fatalf("unexpected response %v", got)
	}
	if _, ok := got["cached"]; ok {
		t.Fatal("cached flag only appears on cache hits")
	}
	if svc.lastURL != "https://youtu.be/dQw4w9WgXcQ" || svc.lastQuality != "192" {
		t.Fatalf("service saw %q %q", svc.lastURL, svc.lastQuality)
	}
}

func TestSubmitCached(t *testing.T) {
	svc := newFakeService()
	svc.submission = convert.Submission{Cached: true, Job: jobs.Job{
		ID:       "job-c",
		Status:   types.StatusReady,
		Progress: 100,
		Cached:   true,
		Title:    "Song",
		FileName: "Song.mp3",
	}}
	app := newApp(t, svc, nil)

	resp, body := do(t, app, postJSON("/convert", `{"sourceUrl":"https://youtu.be/dQw4w9WgXcQ"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got handlers.SubmitResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Cached || got.Status != types.StatusReady || got.Progress != 100 || got.FileName != "Song.mp3" {
		t.Fatalf("unexpected cached response %+v", got)
	}
}

func TestStatus(t *testing.T) {
	svc := newFakeService()
	svc.put(jobs.Job{ID: "job-1", Status: types.StatusExtracting, Progress: 45, Title: "Song"})
	app := newApp(t, svc, nil)

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/convert/job-1", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var job jobs.Job
	if err := json.Unmarshal(body, &job); err != nil {
		t.Fatal(err)
	}
	if job.Status != types.StatusExtracting || job.Progress != 45 || job.Title != "Song" {
		t.Fatalf("unexpected snapshot %+v", job)
	}

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/api/convert/missing", nil))
	if resp.StatusCode != http.StatusNotFound || decodeError(t, body).Code != handlers.CodeJobNotFound {
		t.Fatalf("expected 404 for unknown job, got %d %s", resp.StatusCode, body)
	}
}

func TestDownloadBeforeReadyIsRejected(t *testing.T) {
	svc := newFakeService()
	before := jobs.Job{ID: "job-2", Status: types.StatusExtracting, Progress: 30}
	svc.put(before)
	app := newApp(t, svc, nil)

	for _, path := range []string{"/download/job-2", "/preview/job-2"} {
		resp, body := do(t, app, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.StatusCode != http.StatusBadRequest || decodeError(t, body).Code != handlers.CodeNotReady {
			t.Fatalf("%s: expected 400, got %d %s", path, resp.StatusCode, body)
		}
	}
	after, _ := svc.Get("job-2")
	if after != before {
		t.Fatalf("job must not be mutated: %+v", after)
	}
}

func TestDownload(t *testing.T) {
	path, data := writeArtifact(t, 1000)
	svc := newFakeService()
	svc.put(readyJob("job-3", path))
	svc.put(readyJob("job-gone", filepath.Join(t.TempDir(), "missing.mp3")))
	app := newApp(t, svc, nil)

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/download/job-3", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !bytes.Equal(body, data) {
		t.Fatalf("download body mismatch: got %d bytes", len(body))
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, `filename="My_Song.mp3"`) {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected Content-Type %q", ct)
	}

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/download/job-gone", nil))
	if resp.StatusCode != http.StatusNotFound || decodeError(t, body).Code != handlers.CodeFileExpired {
		t.Fatalf("expected 404 for expired artifact, got %d %s", resp.StatusCode, body)
	}
}

func TestPreview(t *testing.T) {
	path, data := writeArtifact(t, 1000)
	svc := newFakeService()
	svc.put(readyJob("job-4", path))
	app := newApp(t, svc, nil)

	preview := func(rangeHeader string) (*http.Response, []byte) {
		req := httptest.NewRequest(http.MethodGet, "/preview/job-4", nil)
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}
		return do(t, app, req)
	}

	resp, body := preview("")
	if resp.StatusCode != http.StatusOK || len(body) != 125 || !bytes.Equal(body, data[:125]) {
		t.Fatalf("full preview: status %d, %d bytes", resp.StatusCode, len(body))
	}
	if resp.Header.Get("Content-Length") != "125" {
		t.Fatalf("unexpected Content-Length %q", resp.Header.Get("Content-Length"))
	}

	resp, body = preview("bytes=100-500")
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("range: status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 100-124/125" {
		t.Fatalf("unexpected Content-Range %q", got)
	}
	if !bytes.Equal(body, data[100:125]) {
		t.Fatalf("range body mismatch: %d bytes", len(body))
	}

	resp, body = preview("bytes=0-")
	if resp.StatusCode != http.StatusPartialContent || len(body) != 125 {
		t.Fatalf("open range: status %d, %d bytes", resp.StatusCode, len(body))
	}

	resp, body = preview("bytes=125-200")
	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes */125" {
		t.Fatalf("unexpected 416 Content-Range %q", got)
	}
	if decodeError(t, body).Code != handlers.CodeRangeNotAllowed {
		t.Fatalf("unexpected 416 body %s", body)
	}

	resp, body = preview("bytes=5-2")
	if resp.StatusCode != http.StatusOK || !bytes.Equal(body, data[:125]) {
		t.Fatalf("invalid range should be ignored: status %d, %d bytes", resp.StatusCode, len(body))
	}
	if resp.Header.Get("Content-Range") != "" {
		t.Fatalf("full preview must not carry Content-Range, got %q", resp.Header.Get("Content-Range"))
	}

	resp, body = preview("items=0-10")
	if resp.StatusCode != http.StatusOK || len(body) != 125 {
		t.Fatalf("foreign range unit should fall back to the full preview: %d, %d bytes", resp.StatusCode, len(body))
	}
}

func TestPreviewNeverExceedsBudget(t *testing.T) {
	path, _ := writeArtifact(t, 50_000)
	svc := newFakeService()
	svc.put(readyJob("job-5", path))
	app := newApp(t, svc, nil)

	for _, r := range []string{"", "bytes=0-49999", "bytes=10-", "bytes=0-124", "bytes=-10"} {
		req := httptest.NewRequest(http.MethodGet, "/preview/job-5", nil)
		if r != "" {
			req.Header.Set("Range", r)
		}
		resp, body := do(t, app, req)
		if resp.StatusCode >= 300 {
			t.Fatalf("range %q: status %d", r, resp.StatusCode)
		}
		if len(body) > 125 {
			t.Fatalf("range %q returned %d bytes, budget is 125", r, len(body))
		}
	}
}

func TestSystemEndpoints(t *testing.T) {
	svc := newFakeService()
	history := &fakeHistory{records: []storage.HistoryRecord{{JobID: "h1", Quality: "128"}}}
	app := newApp(t, svc, history)

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"healthy"`) {
		t.Fatalf("health: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "line two") {
		t.Fatalf("logs: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/config/client", nil))
	var client handlers.ClientSettings
	if err := json.Unmarshal(body, &client); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("client config: %d %s", resp.StatusCode, body)
	}
	if client.PollIntervalMs != 1000 || client.PreviewSeconds != 1 || len(client.Qualities) != 3 || client.DefaultQuality != types.Quality128 {
		t.Fatalf("unexpected client config %+v", client)
	}

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/history?limit=5", nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"jobId":"h1"`) || history.limit != 5 {
		t.Fatalf("history: %d %s (limit %d)", resp.StatusCode, body, history.limit)
	}

	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ytconv_queue_active") {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
}

func TestHistoryDisabled(t *testing.T) {
	app := newApp(t, newFakeService(), nil)
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/history", nil))
	if resp.StatusCode != http.StatusNotFound || decodeError(t, body).Code != handlers.CodeHistoryDisabled {
		t.Fatalf("expected disabled history, got %d %s", resp.StatusCode, body)
	}
}

func TestWatchRequiresUpgrade(t *testing.T) {
	svc := newFakeService()
	svc.put(jobs.Job{ID: "job-6", Status: types.StatusExtracting})
	app := newApp(t, svc, nil)

	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/ws/convert/job-6", nil))
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426 without upgrade headers, got %d", resp.StatusCode)
	}
}

func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return ln.Addr().String()
}

func dialWatch(t *testing.T, addr, id string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/convert/"+id, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func TestWatchPushesSnapshotAndClosesOnTerminal(t *testing.T) {
	svc := newFakeService()
	svc.put(jobs.Job{ID: "job-7", Status: types.StatusReady, Progress: 100, ArtifactPath: "/tmp/x.mp3", UpdatedAt: time.Now()})
	addr := serve(t, newApp(t, svc, nil))

	conn := dialWatch(t, addr, "job-7")
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var job jobs.Job
	if err := conn.ReadJSON(&job); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if job.ID != "job-7" || job.Status != types.StatusReady {
		t.Fatalf("unexpected snapshot %+v", job)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after a terminal status, got %v", err)
	}
}

func TestWatchStopsWhenClientDisconnects(t *testing.T) {
	svc := newFakeService()
	svc.put(jobs.Job{ID: "job-8", Status: types.StatusQueued, QueuePosition: 3, UpdatedAt: time.Now()})
	addr := serve(t, newApp(t, svc, nil))

	conn := dialWatch(t, addr, "job-8")
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var job jobs.Job
	if err := conn.ReadJSON(&job); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	conn.Close()

	// The job never changes, so only the disconnect can end the loop.
	deadline := time.Now().Add(5 * time.Second)
	for {
		before := svc.getCalls()
		time.Sleep(100 * time.Millisecond)
		if svc.getCalls() == before {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watch loop kept polling after the client disconnected")
		}
	}
}
