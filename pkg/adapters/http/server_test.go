package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/internal/logging"
	"github.com/aretw0/revisit/internal/testutils"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const config = `{"sequence":{"components":["A","B",{"components":["C","D"],"interruptions":[{"components":["C"]}]}]},"studyMetadata":{"title":"t"}}`

func newTestServer(t *testing.T, opts ...Option) (*Server, *revisit.Widget, *testutils.Loopback) {
	t.Helper()
	w, _, lb := testutils.StartWidget(t)
	s, err := NewServer(context.Background(), w, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, w, lb
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoadSpec(t *testing.T) {
	spec, err := LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, spec.Paths.Find("/aggregate"))
	assert.NotNil(t, spec.Paths.Find("/exports/tidy"))
}

func TestHealthAndInfo(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, "GET", "/info", "")
	var info map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "revisit-http", info["app"])
	assert.Equal(t, revisit.Version, info["version"])
	assert.Equal(t, "1.1.0", info["api_version"])

	rec = do(t, s, "GET", "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")

	rec = do(t, s, "OPTIONS", "/config", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestConfigAndAggregate(t *testing.T) {
	s, _, lb := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/design", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/config", "").Code)

	rec := do(t, s, "PUT", "/config", config)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, "GET", "/config", "")
	assert.JSONEq(t, config, rec.Body.String())

	rec = do(t, s, "GET", "/design", "")
	assert.JSONEq(t, `{"components":["A","B",{"components":["C","D"],"interruptions":[{"components":["C"]}]}]}`, rec.Body.String())

	rec = do(t, s, "GET", "/interruptions", "")
	assert.JSONEq(t, `["C"]`, rec.Body.String())

	lb.Deliver(domain.MessageSequenceArray, `[["A","A","B","C"],["A","C","D"]]`)

	rec = do(t, s, "GET", "/aggregate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		Aggregate    domain.Aggregate `json:"aggregate"`
		Participants int              `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.FrequencyTable{"A": 3, "B": 1, "D": 1}, snap.Aggregate.Table)
	assert.Equal(t, 5, snap.Aggregate.Sum)
	assert.Equal(t, 2, snap.Participants)

	rec = do(t, s, "GET", "/design?format=mermaid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vnd.mermaid; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "class s_A high;")

	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/design?format=svg", "").Code)
}

func TestPutConfig_Invalid(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, body := range []string{`{`, `{"other":1}`, `{"sequence":"A"}`, `{"sequence":{"components":[1]}}`} {
		rec := do(t, s, "PUT", "/config", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestPutConfig_TooLarge(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := `{"sequence":{"components":["A"]},"pad":"` + strings.Repeat("x", maxConfigBytes) + `"}`
	rec := do(t, s, "PUT", "/config", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.NotContains(t, rec.Body.String(), "structural")
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/config", "").Code)
}

func TestAggregate_NoData(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, "GET", "/aggregate", "")
	assert.JSONEq(t, `{"aggregate":{"table":{},"sum":0,"max":null},"participants":0}`, rec.Body.String())
}

func TestExports(t *testing.T) {
	s, w, _ := newTestServer(t)
	ctx := context.Background()

	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/exports/json", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/exports/tidy?format=csv", "").Code)

	require.NoError(t, w.Store().Set(ctx, ports.FieldExportJSON, json.RawMessage(`[{"participantId":"p1"}]`)))
	require.NoError(t, w.Store().Set(ctx, ports.FieldExportTidy, json.RawMessage(`{"header":["participantId","answer"],"rows":[["p1","yes"],["p2",null]]}`)))

	rec := do(t, s, "GET", "/exports/json", "")
	assert.JSONEq(t, `[{"participantId":"p1"}]`, rec.Body.String())

	rec = do(t, s, "GET", "/exports/tidy", "")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"header"`)

	rec = do(t, s, "GET", "/exports/tidy?format=csv", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "participantId,answer\np1,yes\np2,\n", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", "/exports/tidy?format=xml", "").Code)
}

func TestMounts(t *testing.T) {
	mounted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	})
	s, _, _ := newTestServer(t, WithBridge(mounted), WithMetrics(mounted))

	assert.Equal(t, "/bridge", do(t, s, "GET", "/bridge", "").Body.String())
	assert.Equal(t, "/metrics", do(t, s, "GET", "/metrics", "").Body.String())

	bare, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, bare, "GET", "/bridge", "").Code)
}

func TestSubscribeAggregate(t *testing.T) {
	s, w, lb := newTestServer(t)
	require.NoError(t, w.SetConfig(context.Background(), json.RawMessage(config)))

	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/aggregate/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				lines <- line
			}
		}
		close(lines)
	}()

	next := func() string {
		select {
		case l := <-lines:
			return l
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, "event: ping", next())
	assert.Equal(t, "data: {}", next())
	assert.Contains(t, next(), `"sum":0`)

	require.Eventually(t, func() bool { return s.Streams.Len() == 1 }, time.Second, 10*time.Millisecond)
	lb.Deliver(domain.MessageSequenceArray, `[["A","B"]]`)
	assert.Contains(t, next(), `"sum":2`)
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager(testLogger())
	ch, unsubscribe := sm.Subscribe()
	for i := 0; i < 20; i++ {
		sm.Broadcast("x")
	}
	assert.Len(t, ch, cap(ch))

	unsubscribe()
	unsubscribe()
	assert.Zero(t, sm.Len())
	_, open := <-drain(ch)
	assert.False(t, open)
}

func drain(ch <-chan string) <-chan string {
	for len(ch) > 0 {
		<-ch
	}
	return ch
}

func testLogger() *slog.Logger { return logging.NewNop() }
