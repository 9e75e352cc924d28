package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"costdash/internal/config"
	"costdash/internal/model"
	"costdash/internal/storage"
	"costdash/internal/tokens"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Backend:      config.BackendMemory,
		SegmentCount: 4,
		RunTimeout:   time.Minute,
	}
}

// setupTestServer 内存存储 + 固定token计数器（不依赖tiktoken词表下载）
func setupTestServer(t *testing.T, cfg *config.Config, store storage.SegmentStore) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := NewServer(cfg, ServerDeps{
		Store:     store,
		Estimator: tokens.NewEstimatorWithCounter(func(text, _ string) int { return len(text) }),
	})
	srv.demoDelay = 0
	srv.now = func() time.Time { return time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	r := gin.New()
	srv.SetupRoutes(r)
	return srv, r
}

func doGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

// parseFrames 解析 `data: {json}\n\n` 帧
func parseFrames(t *testing.T, body string) []model.StreamEvent {
	t.Helper()
	var events []model.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev model.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

// recordingSink 收集事件；failAfter>0 时第N+1次写入开始返回错误
type recordingSink struct {
	events    []*model.StreamEvent
	failAfter int
}

func (r *recordingSink) Send(event *model.StreamEvent) error {
	if r.failAfter > 0 && len(r.events) >= r.failAfter {
		return errSinkBroken
	}
	r.events = append(r.events, event)
	return nil
}

var errSinkBroken = errors.New("broken pipe")
