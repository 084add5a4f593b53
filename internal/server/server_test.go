package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"anigiffy/internal/config"
	"anigiffy/internal/ledger"
	"anigiffy/internal/logging"
	"anigiffy/internal/preflight"
	"anigiffy/internal/testsupport"
)

const generous = "1000 per minute"

type harness struct {
	t      *testing.T
	srv    *Server
	ts     *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	srv, err := New(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &harness{t: t, srv: srv, ts: ts, client: &http.Client{Jar: jar}}
}

func defaultHarness(t *testing.T, opts ...Option) *harness {
	return newHarness(t, testsupport.NewConfig(t, testsupport.WithRateLimits(generous, generous, generous, generous)), opts...)
}

func (h *harness) do(method, path string, body any) *http.Response {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, reader)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) upload(name string, data []byte) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		h.t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	resp, err := h.client.Post(h.ts.URL+"/api/frames/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		h.t.Fatalf("upload: %v", err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func expectError(t *testing.T, resp *http.Response, status int, title string) errorResponse {
	t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, body)
	}
	out := decode[errorResponse](t, resp)
	if out.Error != title {
		t.Fatalf("expected error %q, got %q (%s)", title, out.Error, out.Message)
	}
	return out
}

func openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(context.Background(), testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// noisy returns an image that does not compress well.
func noisy(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	state := uint32(2463534242)
	for i := range img.Pix {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		img.Pix[i] = byte(state)
	}
	return img
}

func projectDoc(name string, width, height int, files ...string) map[string]any {
	frames := make([]map[string]any, 0, len(files))
	for _, f := range files {
		frames = append(frames, map[string]any{"file": f, "duration": 100})
	}
	return map[string]any{
		"name":     name,
		"settings": map[string]any{"width": width, "height": height, "loop": 0},
		"frames":   frames,
	}
}

func (h *harness) uploadFrames(colors ...color.NRGBA) []string {
	h.t.Helper()
	var refs []string
	for i, c := range colors {
		png := testsupport.EncodePNG(h.t, testsupport.Solid(40, 30, c))
		resp := h.upload("frame"+string(rune('a'+i))+".png", png)
		if resp.StatusCode != http.StatusOK {
			h.t.Fatalf("upload status %d", resp.StatusCode)
		}
		refs = append(refs, decode[uploadResponse](h.t, resp).Path)
	}
	return refs
}

func TestUploadGenerateAndServe(t *testing.T) {
	h := defaultHarness(t)

	resp := h.upload("red.png", testsupport.EncodePNG(t, testsupport.Solid(40, 30, color.NRGBA{R: 255, A: 255})))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d", resp.StatusCode)
	}
	up := decode[uploadResponse](t, resp)
	if !up.Success || up.Width != 40 || up.Height != 30 {
		t.Fatalf("unexpected upload response: %+v", up)
	}
	if !strings.HasPrefix(up.Path, "uploads/") || !strings.HasSuffix(up.Filename, ".png") {
		t.Fatalf("unexpected stored reference: %+v", up)
	}

	add := h.do(http.MethodPost, "/api/frames/add", map[string]any{"file": up.Path, "duration": 250})
	frame := decode[frameResponse](t, add)
	if !strings.HasPrefix(frame.Frame.ID, "frame-") || frame.Frame.Duration != 250 {
		t.Fatalf("unexpected frame: %+v", frame.Frame)
	}

	refs := append([]string{up.Path}, h.uploadFrames(color.NRGBA{G: 255, A: 255})...)
	full := h.do(http.MethodPost, "/api/generate/full", map[string]any{"project": projectDoc("My Anim", 40, 30, refs...)})
	if full.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(full.Body)
		t.Fatalf("full status %d: %s", full.StatusCode, body)
	}
	gen := decode[generateResponse](t, full)
	if !gen.Success || gen.Frames != 2 || gen.Size == 0 {
		t.Fatalf("unexpected generate response: %+v", gen)
	}
	if !strings.HasPrefix(gen.Filename, "My_Anim_") || gen.Path != "/api/generate/file/"+gen.Filename {
		t.Fatalf("unexpected output naming: %+v", gen)
	}
	if gen.Skipped == nil || len(gen.Skipped) != 0 {
		t.Fatalf("expected empty skipped list, got %+v", gen.Skipped)
	}

	served := h.do(http.MethodGet, gen.Path, nil)
	if served.Header.Get("Content-Type") != "image/gif" {
		t.Fatalf("unexpected content type %q", served.Header.Get("Content-Type"))
	}
	anim, err := gif.DecodeAll(served.Body)
	if err != nil {
		t.Fatalf("decode served gif: %v", err)
	}
	if len(anim.Image) != 2 {
		t.Fatalf("expected 2 gif frames, got %d", len(anim.Image))
	}

	download := h.do(http.MethodGet, "/api/generate/download/"+gen.Filename, nil)
	if cd := download.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}

	qr := h.do(http.MethodGet, "/api/generate/qr/"+gen.Filename, nil)
	if qr.StatusCode != http.StatusOK || qr.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected qr response %d %q", qr.StatusCode, qr.Header.Get("Content-Type"))
	}

	list := decode[struct {
		Gifs []outputEntry `json:"gifs"`
	}](t, h.do(http.MethodGet, "/api/generate/list", nil))
	if len(list.Gifs) != 1 || list.Gifs[0].Filename != gen.Filename {
		t.Fatalf("unexpected output list: %+v", list.Gifs)
	}
}

func TestPreviewTruncatesAndRecordsHistory(t *testing.T) {
	store := openLedger(t)
	h := defaultHarness(t, WithLedger(store))
	refs := h.uploadFrames(
		color.NRGBA{R: 255, A: 255},
		color.NRGBA{G: 255, A: 255},
		color.NRGBA{B: 255, A: 255},
	)

	resp := h.do(http.MethodPost, "/api/generate/preview", map[string]any{
		"project":   projectDoc("preview", 40, 30, refs...),
		"maxFrames": 2,
	})
	gen := decode[generateResponse](t, resp)
	if !strings.HasPrefix(gen.Filename, "preview_") || gen.Frames != 2 {
		t.Fatalf("unexpected preview response: %+v", gen)
	}
	if gen.Message != "Preview created with 2 of 3 frames" {
		t.Fatalf("unexpected preview message %q", gen.Message)
	}

	missing := h.do(http.MethodPost, "/api/generate/full", map[string]any{
		"project": projectDoc("broken", 40, 30, "uploads/missing.png"),
	})
	expectError(t, missing, http.StatusUnprocessableEntity, "Failed to generate GIF")

	history := decode[struct {
		Jobs []map[string]any `json:"jobs"`
	}](t, h.do(http.MethodGet, "/api/generate/history", nil))
	if len(history.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(history.Jobs))
	}
	statuses := map[any]bool{}
	for _, job := range history.Jobs {
		statuses[job["status"]] = true
	}
	if !statuses["succeeded"] || !statuses["failed"] {
		t.Fatalf("expected one succeeded and one failed job, got %+v", history.Jobs)
	}
}

func TestGenerateRejectsBadRequests(t *testing.T) {
	h := defaultHarness(t)

	expectError(t, h.do(http.MethodPost, "/api/generate/full", map[string]any{}), http.StatusBadRequest, "No project data provided")
	expectError(t, h.do(http.MethodPost, "/api/generate/full", map[string]any{"project": projectDoc("empty", 40, 30)}),
		http.StatusBadRequest, "No frames")

	looping := projectDoc("looping", 40, 30, "uploads/a.png")
	looping["settings"].(map[string]any)["loop"] = 70000
	invalid := expectError(t, h.do(http.MethodPost, "/api/generate/preview", map[string]any{"project": looping}),
		http.StatusBadRequest, "Validation failed")
	if !strings.Contains(invalid.Message, "Loop count must be between -1 and 65535") {
		t.Fatalf("expected loop problem in validation message, got %q", invalid.Message)
	}
}

func TestGenerateEnforcesQuotas(t *testing.T) {
	h := newHarness(t, testsupport.NewConfig(t,
		testsupport.WithRateLimits(generous, generous, generous, generous),
		func(c *config.Config) {
			c.Quotas.MaxFrames = 2
			c.Render.PreviewFrames = 2
		},
	))

	huge := expectError(t, h.do(http.MethodPost, "/api/generate/preview", map[string]any{
		"project": projectDoc("huge", 5000, 30, "uploads/a.png"),
	}), http.StatusRequestEntityTooLarge, "Generation not allowed")
	if huge.Message != "Image dimensions exceed maximum allowed" {
		t.Fatalf("unexpected dimension message %q", huge.Message)
	}

	long := expectError(t, h.do(http.MethodPost, "/api/generate/full", map[string]any{
		"project": projectDoc("long", 40, 30, "uploads/a.png", "uploads/b.png", "uploads/c.png"),
	}), http.StatusRequestEntityTooLarge, "Generation not allowed")
	if long.Message != "Frame count exceeds maximum allowed" {
		t.Fatalf("unexpected frame count message %q", long.Message)
	}

	list := decode[struct {
		Gifs []outputEntry `json:"gifs"`
	}](t, h.do(http.MethodGet, "/api/generate/list", nil))
	if len(list.Gifs) != 0 {
		t.Fatalf("refused generations must not write output, got %+v", list.Gifs)
	}
}

func TestMemoryGuardRefusesFullGeneration(t *testing.T) {
	guard := preflight.MemoryGuard{Available: func(context.Context) (uint64, error) { return 1, nil }}
	h := defaultHarness(t, WithMemoryGuard(guard))
	refs := h.uploadFrames(color.NRGBA{R: 255, A: 255})

	expectError(t, h.do(http.MethodPost, "/api/generate/full", map[string]any{"project": projectDoc("big", 40, 30, refs...)}),
		http.StatusServiceUnavailable, "Server busy")

	preview := h.do(http.MethodPost, "/api/generate/preview", map[string]any{"project": projectDoc("big", 40, 30, refs...)})
	if preview.StatusCode != http.StatusOK {
		t.Fatalf("previews bypass the guard, got %d", preview.StatusCode)
	}
}

func TestUploadValidation(t *testing.T) {
	h := newHarness(t, testsupport.NewConfig(t,
		testsupport.WithRateLimits(generous, generous, generous, generous),
		testsupport.WithQuotas(1024*1024, 2*1024*1024, 1, 5),
	))

	expectError(t, h.upload("notes.txt", []byte("hello")), http.StatusBadRequest, "Invalid file type")
	expectError(t, h.upload("fake.png", []byte("not an image")), http.StatusBadRequest, "Invalid image")

	h.uploadFrames(color.NRGBA{R: 255, A: 255})
	limited := expectError(t, h.upload("second.png", testsupport.EncodePNG(t, testsupport.Solid(4, 4, color.NRGBA{A: 255}))),
		http.StatusTooManyRequests, "Upload not allowed")
	if limited.Message == "" {
		t.Fatal("expected quota message")
	}

	images := decode[struct {
		Images []map[string]any `json:"images"`
	}](t, h.do(http.MethodGet, "/api/frames/list", nil))
	if len(images.Images) != 1 {
		t.Fatalf("rejected uploads must not be stored, got %d images", len(images.Images))
	}
}

func TestAddFrameRequiresExistingFile(t *testing.T) {
	h := defaultHarness(t)
	expectError(t, h.do(http.MethodPost, "/api/frames/add", map[string]any{"file": "uploads/nope.png"}),
		http.StatusNotFound, "File not found")
	expectError(t, h.do(http.MethodPost, "/api/frames/add", map[string]any{"file": " "}),
		http.StatusBadRequest, "No file path provided")
	expectError(t, h.do(http.MethodPut, "/api/frames/frame-1", map[string]any{"duration": 0}),
		http.StatusBadRequest, "Invalid duration")

	reorder := decode[map[string]any](t, h.do(http.MethodPut, "/api/frames/reorder", map[string]any{"frameIds": []string{"b", "a"}}))
	if ids, _ := reorder["frameIds"].([]any); len(ids) != 2 || ids[0] != "b" {
		t.Fatalf("unexpected reorder echo: %+v", reorder)
	}
}

func TestServeImageRejectsTraversal(t *testing.T) {
	h := defaultHarness(t)
	resp := h.do(http.MethodGet, "/api/frames/image/..%2F..%2Fconfig.toml", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp = h.do(http.MethodGet, "/api/generate/file/..%2Fsecret.gif", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestProjectLifecycle(t *testing.T) {
	h := newHarness(t, testsupport.NewConfig(t,
		testsupport.WithRateLimits(generous, generous, generous, generous),
		testsupport.WithQuotas(1024*1024, 2*1024*1024, 10, 1),
	))

	saved := decode[map[string]any](t, h.do(http.MethodPost, "/api/projects", projectDoc("Holiday Trip", 320, 240)))
	if saved["filename"] != "Holiday_Trip.json" {
		t.Fatalf("unexpected saved filename: %+v", saved)
	}
	again := h.do(http.MethodPost, "/api/projects", projectDoc("Holiday Trip", 640, 480))
	if again.StatusCode != http.StatusOK {
		t.Fatalf("overwriting an existing project should bypass the quota, got %d", again.StatusCode)
	}
	expectError(t, h.do(http.MethodPost, "/api/projects", projectDoc("Second", 320, 240)),
		http.StatusTooManyRequests, "Save not allowed")

	list := decode[struct {
		Projects []map[string]any `json:"projects"`
	}](t, h.do(http.MethodGet, "/api/projects", nil))
	if len(list.Projects) != 1 || list.Projects[0]["name"] != "Holiday Trip" {
		t.Fatalf("unexpected project list: %+v", list.Projects)
	}

	loaded := decode[struct {
		Project struct {
			Settings struct {
				Width int `json:"width"`
			} `json:"settings"`
		} `json:"project"`
	}](t, h.do(http.MethodGet, "/api/projects/Holiday_Trip", nil))
	if loaded.Project.Settings.Width != 640 {
		t.Fatalf("expected overwritten width 640, got %d", loaded.Project.Settings.Width)
	}

	if resp := h.do(http.MethodDelete, "/api/projects/Holiday_Trip", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	expectError(t, h.do(http.MethodGet, "/api/projects/Holiday_Trip", nil), http.StatusNotFound, "Project not found")
	expectError(t, h.do(http.MethodPost, "/api/projects", map[string]any{"frames": []any{}}),
		http.StatusBadRequest, "Project name is required")
}

func TestSessionStatsAndStatus(t *testing.T) {
	h := defaultHarness(t)
	h.uploadFrames(color.NRGBA{R: 255, A: 255})

	stats := decode[sessionStatsResponse](t, h.do(http.MethodGet, "/api/session/stats", nil))
	if stats.Stats.ImageCount != 1 || stats.Stats.TotalSize == 0 {
		t.Fatalf("unexpected stats: %+v", stats.Stats)
	}
	if stats.Remaining.Images.Used != 1 || stats.Remaining.Images.Remaining != stats.Remaining.Images.Limit-1 {
		t.Fatalf("unexpected remaining quota: %+v", stats.Remaining.Images)
	}

	status := decode[statusResponse](t, h.do(http.MethodGet, "/api/status", nil))
	if status.Status != "ok" || status.Sessions != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSessionCookieAndSecurityHeaders(t *testing.T) {
	h := defaultHarness(t)
	resp := h.do(http.MethodGet, "/api/status", nil)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == h.srv.cfg.Session.CookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected HttpOnly lax session cookie, got %+v", cookie)
	}
	if _, err := os.Stat(filepath.Join(h.srv.cfg.Paths.DataDir, cookie.Value, "uploads")); err != nil {
		t.Fatalf("session directory not initialized: %v", err)
	}

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "SAMEORIGIN",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Fatalf("%s: got %q want %q", header, got, want)
		}
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	second := h.do(http.MethodGet, "/api/status", nil)
	if len(second.Cookies()) != 0 {
		t.Fatal("a valid session should not be reissued")
	}
}

func TestRateLimitReturnsJSON(t *testing.T) {
	h := newHarness(t, testsupport.NewConfig(t, testsupport.WithRateLimits(generous, generous, generous, "2 per minute")))
	h.do(http.MethodGet, "/api/status", nil)
	h.do(http.MethodGet, "/api/status", nil)
	limited := expectError(t, h.do(http.MethodGet, "/api/status", nil), http.StatusTooManyRequests, "Rate limit exceeded")
	if limited.Message != "Too many requests. Please try again later." {
		t.Fatalf("unexpected message %q", limited.Message)
	}
}

func TestAuthRequiresBearerToken(t *testing.T) {
	h := newHarness(t, testsupport.NewConfig(t,
		testsupport.WithRateLimits(generous, generous, generous, generous),
		testsupport.WithAPIToken("secret"),
	))
	if resp := h.do(http.MethodGet, "/api/status", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, h.ts.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("authorized request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRateLimits(generous, generous, generous, generous))
	cfg.Quotas.MaxRequestSize = 512
	h := newHarness(t, cfg)

	big := testsupport.EncodePNG(t, noisy(64, 64))
	expectError(t, h.upload("big.png", big), http.StatusRequestEntityTooLarge, "File too large")
}

func TestDescribeGenerateError(t *testing.T) {
	status, title, _ := describeGenerateError(context.Canceled, "preview")
	if status != http.StatusServiceUnavailable || title != "Failed to generate preview" {
		t.Fatalf("unexpected mapping: %d %q", status, title)
	}
}
