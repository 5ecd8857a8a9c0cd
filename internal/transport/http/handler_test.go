package httptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterd/internal/audit"
	"rosterd/internal/docstore/memory"
	"rosterd/internal/participant"
	"rosterd/pkg/testutil"
)

type fixture struct {
	router  http.Handler
	manager *participant.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })

	pub := audit.NewPublisher(audit.NewMemoryStore())
	manager, err := participant.NewManager(context.Background(), store,
		participant.WithAudit(pub))
	require.NoError(t, err)

	h := NewHandler(manager, store, zerolog.Nop(), 25)
	return &fixture{router: NewRouter(h, zerolog.Nop()), manager: manager}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Do(f.router, testutil.NewRequest(t, method, path, "alice", body))
}

func (f *fixture) createNew(t *testing.T, body string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/participants/new", body)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := testutil.Unmarshal[idResponse](t, w)
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestCreateAndFetchIntakeRecord(t *testing.T) {
	f := newFixture(t)
	id := f.createNew(t, `{"fields":{"name":"Alice"}}`)

	w := f.do(t, http.MethodGet, "/participants/new/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	var p participantResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, "Alice", p.Fields["name"])
	require.Len(t, p.History, 1)
	assert.Equal(t, "alice", p.History[0].Actor)
	assert.Equal(t, "received", p.History[0].Event)
}

func TestFetchMissingRecordIs404(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/participants/new/nope", "")
	testutil.AssertError(t, w, http.StatusNotFound, "not_found")
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/participants/new", `{"fields":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRejectsReservedField(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/participants/new", `{"fields":{"status":"approved"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndStatistics(t *testing.T) {
	f := newFixture(t)
	id := f.createNew(t, `{"fields":{"name":"Alice"}}`)

	w := f.do(t, http.MethodPatch, "/participants/new/"+id, `{"fields":{"city":"Oslo"}}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/statistics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats statisticsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.NumOfNew)
}

func TestDeleteIntakeRecord(t *testing.T) {
	f := newFixture(t)
	id := f.createNew(t, `{"fields":{"name":"Alice"}}`)

	w := f.do(t, http.MethodDelete, "/participants/new/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/statistics", "")
	var stats statisticsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, int64(0), stats.NumOfNew)
}

func TestMoveThenApproveFlow(t *testing.T) {
	f := newFixture(t)
	id := f.createNew(t, `{"fields":{"name":"Alice"}}`)

	w := f.do(t, http.MethodPost, "/participants/new/"+id+"/move", "")
	require.Equal(t, http.StatusOK, w.Code)
	var moved idResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&moved))
	assert.NotEqual(t, id, moved.ID)

	w = f.do(t, http.MethodGet, "/participants/new/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/participants/permanent/"+moved.ID+"/approve", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/participants/permanent/"+moved.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var p participantResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "approved", p.Status)
	require.Len(t, p.History, 3)
	assert.Equal(t, "moved to permanent", p.History[1].Event)
	assert.Equal(t, "approved", p.History[2].Event)
}

func TestSoftDeleteAndUndelete(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/participants/permanent", `{"fields":{"name":"Bob"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created idResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))

	w = f.do(t, http.MethodPost, "/participants/permanent/"+created.ID+"/delete", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/participants/permanent/"+created.ID, "")
	var p participantResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "deleted", p.Status)

	w = f.do(t, http.MethodPost, "/participants/permanent/"+created.ID+"/undelete", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/participants/permanent/"+created.ID, "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "pending", p.Status)
}

func TestAuditEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createNew(t, `{"fields":{"name":"Alice"}}`)

	w := f.do(t, http.MethodGet, "/participants/new/"+id+"/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp auditResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, audit.ActionAddNew, resp.Events[0].Action)
	assert.Equal(t, "alice", resp.Events[0].Actor)

	w = f.do(t, http.MethodGet, "/participants/bogus/"+id+"/audit", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestWatchStatisticsStreams(t *testing.T) {
	f := newFixture(t)

	server := httptest.NewServer(f.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/watch/statistics", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() (string, string) {
		t.Helper()
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, data := readFrame()
	assert.Equal(t, "statistics", name)
	assert.JSONEq(t, `{"numOfNew":0}`, data)

	_, err = f.manager.AddNew(context.Background(), map[string]any{"name": "A"})
	require.NoError(t, err)

	name, data = readFrame()
	assert.Equal(t, "statistics", name)
	assert.JSONEq(t, `{"numOfNew":1}`, data)
}

func TestWatchListStreamsInitialWindow(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.AddNew(context.Background(), map[string]any{"name": "A"})
	require.NoError(t, err)
	_, err = f.manager.AddNew(context.Background(), map[string]any{"name": "B"})
	require.NoError(t, err)

	server := httptest.NewServer(f.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		server.URL+"/watch/new?status=pending", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	readChange := func() listEventResponse {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var ev listEventResponse
				require.NoError(t, json.Unmarshal(
					[]byte(strings.TrimPrefix(strings.TrimRight(line, "\n"), "data: ")), &ev))
				return ev
			}
		}
	}

	first := readChange()
	assert.Equal(t, "added", first.Kind)
	assert.Equal(t, 0, first.NewIndex)
	second := readChange()
	assert.Equal(t, "added", second.Kind)
	assert.Equal(t, 1, second.NewIndex)
}

func TestWatchRejectsUnknownCollection(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/watch/bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
