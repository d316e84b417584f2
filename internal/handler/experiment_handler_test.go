package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"traffic-exp/internal/config"
	"traffic-exp/internal/runner"
	"traffic-exp/internal/service"
	"traffic-exp/internal/trace"

	"github.com/gin-gonic/gin"
)

type doneHandle struct{}

func (doneHandle) Wait(context.Context) error { return nil }
func (doneHandle) Terminate() error           { return nil }

type countingRunner struct {
	mu       sync.Mutex
	launches int
}

func (r *countingRunner) Launch(ctx context.Context, host string, tmpl runner.Template, params runner.Params) (runner.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launches++
	return doneHandle{}, nil
}

func setupHandler(t *testing.T) (*gin.Engine, *countingRunner, config.ExperimentConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	tracePath := filepath.Join(root, "trace.txt")
	if err := os.WriteFile(tracePath, []byte("h1 h2\nh1 0 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.ExperimentConfig{
		TraceFile:     tracePath,
		Hosts:         []string{"h1", "h2"},
		LogDir:        filepath.Join(root, "logs"),
		OutputDir:     filepath.Join(root, "outputs"),
		Protocol:      config.ProtocolTCP,
		Warmup:        time.Millisecond,
		ClientTimeout: time.Second,
		Settle:        time.Millisecond,
	}

	r := &countingRunner{}
	h := NewExperimentHandler(service.NewExperimentRunner(cfg, r, runner.DefaultCommands(), nil), nil)

	engine := gin.New()
	engine.POST("/run", h.RunExperiment)
	engine.POST("/score", h.ScoreExperiment)
	engine.GET("/runs", h.ListRuns)
	engine.GET("/runs/:id", h.GetRun)
	return engine, r, cfg
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRunExperiment(t *testing.T) {
	engine, r, cfg := setupHandler(t)

	w := do(engine, http.MethodPost, "/run", fmt.Sprintf(`{"trace_file": %q}`, cfg.TraceFile))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Result     service.ExperimentResult `json:"result"`
		ReportPath string                   `json:"report_path"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result.DurationSeconds != 0 {
		t.Errorf("duration = %v", resp.Result.DurationSeconds)
	}
	// no client wrote a log, so both throughput logs are reported empty
	if len(resp.Result.Errors) != 2 {
		t.Errorf("errors = %v", resp.Result.Errors)
	}
	if resp.ReportPath == "" {
		t.Error("missing report path")
	}
	if r.launches == 0 {
		t.Error("nothing was dispatched")
	}
}

func TestRunExperimentSurvivesClientDisconnect(t *testing.T) {
	engine, r, cfg := setupHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(fmt.Sprintf(`{"trace_file": %q}`, cfg.TraceFile))).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Result service.ExperimentResult `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result.Interrupted {
		t.Error("run was interrupted by the request context")
	}
	// 3 server starts, 3 client starts, 2 iperf server stops, 8 cleanup stops
	if r.launches != 16 {
		t.Errorf("launches = %d, want 16", r.launches)
	}
}

func TestRunExperimentBadRequests(t *testing.T) {
	engine, r, cfg := setupHandler(t)

	bad := filepath.Join(filepath.Dir(cfg.TraceFile), "bad.txt")
	if err := os.WriteFile(bad, []byte("h1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"not json":        `{`,
		"missing trace":   `{}`,
		"bad protocol":    fmt.Sprintf(`{"trace_file": %q, "protocol": "sctp"}`, cfg.TraceFile),
		"malformed trace": fmt.Sprintf(`{"trace_file": %q}`, bad),
	}
	for name, body := range cases {
		if w := do(engine, http.MethodPost, "/run", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, body %s", name, w.Code, w.Body.String())
		}
	}
	if r.launches != 0 {
		t.Errorf("rejected requests dispatched %d commands", r.launches)
	}
}

func TestScoreExperiment(t *testing.T) {
	engine, r, cfg := setupHandler(t)
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{"h1_iperf.log": "1000\n", "h2_iperf.log": "1000\n", "h1_mc.log": "10\n"} {
		if err := os.WriteFile(filepath.Join(cfg.LogDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w := do(engine, http.MethodPost, "/score", fmt.Sprintf(`{"trace_file": %q}`, cfg.TraceFile))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Result service.ExperimentResult `json:"result"`
		Report string                   `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result.Score == nil || math.Abs(resp.Result.Score.Final-2) > 1e-9 {
		t.Errorf("score = %+v", resp.Result.Score)
	}
	if !strings.Contains(resp.Report, "- final score: 2.000000") {
		t.Errorf("report:\n%s", resp.Report)
	}
	if r.launches != 0 {
		t.Errorf("scoring dispatched %d commands", r.launches)
	}
}

func TestRunHistoryWithoutDatabase(t *testing.T) {
	engine, _, _ := setupHandler(t)

	for _, path := range []string{"/runs", "/runs/1"} {
		if w := do(engine, http.MethodGet, path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrBusy, http.StatusConflict},
		{fmt.Errorf("%w: port", service.ErrInvalidRequest), http.StatusBadRequest},
		{&trace.MalformedTraceError{Line: 1, Reason: "odd"}, http.StatusBadRequest},
		{fmt.Errorf("build traffic generator: exit status 2"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
