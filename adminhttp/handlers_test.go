package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/alchemist-core/eventlog"
	"github.com/arc-self/alchemist-core/kernel"
	"github.com/arc-self/alchemist-core/router"
	"github.com/arc-self/alchemist-core/subject"
)

func newTestLog(t *testing.T) *eventlog.FileLog {
	t.Helper()
	l, err := eventlog.NewFileLog(t.TempDir(), zaptest.NewLogger(t), eventlog.DefaultDedupWindow)
	require.NoError(t, err)
	return l
}

func buildEvent(t *testing.T, s kernel.Subject) kernel.Msg {
	t.Helper()
	m, err := kernel.BuildEvent(s, []byte("payload"), uuid.New(), kernel.Options{})
	require.NoError(t, err)
	return m
}

func newTestEcho(t *testing.T, log eventlog.Log, introspector router.Introspector) *echo.Echo {
	t.Helper()
	e := echo.New()
	RegisterRoutes(e, log, introspector, zaptest.NewLogger(t))
	return e
}

func TestHealthz(t *testing.T) {
	e := newTestEcho(t, newTestLog(t), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListSubscriptionsWithIntrospector(t *testing.T) {
	r := router.NewInProcessRouter()
	pattern, err := subject.ParsePattern("graph.*.added.v1")
	require.NoError(t, err)
	_, err = r.Subscribe(pattern, "", func(ctx context.Context, msg kernel.Msg) {})
	require.NoError(t, err)

	e := newTestEcho(t, newTestLog(t), r)
	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
}

func TestListSubscriptionsWithoutIntrospectorReturns501(t *testing.T) {
	e := newTestEcho(t, newTestLog(t), nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestListSubscriptionsEmptyReturnsEmptyArrayNotNull(t *testing.T) {
	r := router.NewInProcessRouter()
	e := newTestEcho(t, newTestLog(t), r)
	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "[]", string(body["data"]))
}

func TestListStreamRecords(t *testing.T) {
	log := newTestLog(t)
	subj := kernel.Subject{"graph", "node", "added", "v1"}
	msg := buildEvent(t, subj)
	_, err := log.Append(context.Background(), "graph-42", msg)
	require.NoError(t, err)

	e := newTestEcho(t, log, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/streams/graph-42/records", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
}

func TestListStreamRecordsMissingStream(t *testing.T) {
	e := newTestEcho(t, newTestLog(t), nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/streams/does-not-exist/records", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["count"])
}
