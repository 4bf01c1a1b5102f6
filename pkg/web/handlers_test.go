package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liut/parlor/pkg/models/convo"
	"github.com/liut/parlor/pkg/services/stores"
	"github.com/liut/parlor/pkg/transcript"
)

const chartMessage = "Sales:\n```js\nnew Chart(ctx, {type: 'bar', data: {labels: ['Q1', 'Q2'], datasets: [{label: 'sales', data: [3, '4']}]}})\n```"

type fakeInvoker struct {
	mu         sync.Mutex
	calls      int
	resource   string
	query      string
	credential string

	result string
	err    error
}

func (f *fakeInvoker) Invoke(ctx context.Context, resource, query, credential string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.resource, f.query, f.credential = resource, query, credential
	return f.result, f.err
}

type apiResp struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T, iv Invoker) (*server, *miniredis.Miniredis) {
	t.Helper()
	return newTestServerWith(t, Config{Invoker: iv, InvokeRate: "100-M"})
}

func newTestServerWith(t *testing.T, cfg Config) (*server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	agents := stores.NewAgents(
		convo.Agent{ID: "sql", Name: "analyst", Actions: []convo.Action{{ID: "db", Resource: "http://db.local/query"}}},
		convo.Agent{ID: "bare", Name: "bare"},
	)
	if cfg.Invoker == nil {
		cfg.Invoker = new(fakeInvoker)
	}
	cfg.Storage = stores.NewWithRC(rc, agents, stores.Limits{})
	cfg.Segmenter = transcript.New(transcript.Options{UserName: "You"})
	return newServer(cfg), mr
}

func doRequest(t *testing.T, s *server, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, apiResp) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	s.ar.ServeHTTP(rec, req)

	var res apiResp
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func createConversation(t *testing.T, s *server, agent string) string {
	t.Helper()
	rec, res := doRequest(t, s, http.MethodPost, "/api/conversations", M{"agent": agent})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cv convo.Conversation
	require.NoError(t, json.Unmarshal(res.Data, &cv))
	require.NotEmpty(t, cv.ID)
	assert.Equal(t, agent, cv.Agent)
	return cv.ID
}

func postEvent(t *testing.T, s *server, cid string, ev convo.Event) convo.Event {
	t.Helper()
	rec, res := doRequest(t, s, http.MethodPost, "/api/conversations/"+cid+"/events", ev)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out convo.Event
	require.NoError(t, json.Unmarshal(res.Data, &out))
	return out
}

func getView(t *testing.T, s *server, path string) TranscriptView {
	t.Helper()
	rec, res := doRequest(t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view TranscriptView
	require.NoError(t, json.Unmarshal(res.Data, &view))
	return view
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, _ := doRequest(t, s, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pong\n", rec.Body.String())
}

func TestHighlightCSS(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, _ := doRequest(t, s, http.MethodGet, "/highlight.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.Contains(t, rec.Body.String(), ".chroma")
}

func TestAgents(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, res := doRequest(t, s, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, res.Count)

	rec, res = doRequest(t, s, http.MethodGet, "/api/agents/sql", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agent convo.Agent
	require.NoError(t, json.Unmarshal(res.Data, &agent))
	assert.Equal(t, "analyst", agent.Name)
	assert.Equal(t, "db", agent.Actions[0].ID)

	rec, res = doRequest(t, s, http.MethodGet, "/api/agents/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 404, res.Status)
}

func TestCreateConversation(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cid := createConversation(t, s, "sql")

	rec, res := doRequest(t, s, http.MethodGet, "/api/conversations/"+cid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var meta convo.Conversation
	require.NoError(t, json.Unmarshal(res.Data, &meta))
	assert.Equal(t, cid, meta.ID)
	assert.Equal(t, "sql", meta.Agent)
	assert.False(t, meta.Loading)

	rec, _ = doRequest(t, s, http.MethodPost, "/api/conversations", M{"agent": "nobody"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/conversations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsAndTranscript(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cid := createConversation(t, s, "sql")

	ev := postEvent(t, s, cid, convo.Event{Sender: convo.SenderUser, Payloads: []convo.Payload{convo.Message{Text: "show sales"}}})
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.Message{Text: chartMessage}}})

	rec, _ := doRequest(t, s, http.MethodPost, "/api/conversations/"+cid+"/events", M{"sender": "robot", "event": M{"message": "x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = doRequest(t, s, http.MethodPost, "/api/conversations/"+cid+"/events", M{"sender": "user", "event": M{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, res := doRequest(t, s, http.MethodGet, "/api/conversations/"+cid+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, res.Count)

	view := getView(t, s, "/api/conversations/"+cid+"/transcript")
	assert.False(t, view.Loading)
	assert.Equal(t, []transcript.Kind{
		transcript.KindSectionBreak, transcript.KindUserMessage,
		transcript.KindSectionBreak, transcript.KindAgentMessage, transcript.KindAgentCode, transcript.KindAgentChart,
		transcript.KindAgentMessage,
	}, view.Segments.Kinds())
	assert.Equal(t, "You", view.Segments[0].Name)
	assert.Equal(t, "Analyst", view.Segments[2].Name)
	assert.Empty(t, view.Segments[4].HTML)
	require.NotNil(t, view.LastChart)
	require.NotNil(t, view.LastChart.Spec)
	assert.Equal(t, "bar", view.LastChart.Spec.Type)

	view = getView(t, s, "/api/conversations/"+cid+"/transcript?highlight=1")
	assert.Contains(t, view.Segments[4].HTML, "chroma")
}

func TestLoadingAndPartial(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cid := createConversation(t, s, "sql")
	base := "/api/conversations/" + cid

	postEvent(t, s, cid, convo.Event{Sender: convo.SenderUser, Payloads: []convo.Payload{convo.Message{Text: "hello"}}})

	rec, _ := doRequest(t, s, http.MethodPut, base+"/partial", M{"text": "thinking"})
	require.Equal(t, http.StatusOK, rec.Code)
	view := getView(t, s, base+"/transcript")
	kinds := view.Segments.Kinds()
	assert.Equal(t, transcript.KindAgentPartial, kinds[len(kinds)-1])
	assert.Equal(t, "thinking", view.Segments[len(kinds)-1].Text)

	rec, _ = doRequest(t, s, http.MethodDelete, base+"/partial", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = getView(t, s, base+"/transcript")
	assert.Equal(t, []transcript.Kind{transcript.KindSectionBreak, transcript.KindUserMessage}, view.Segments.Kinds())

	rec, _ = doRequest(t, s, http.MethodPut, base+"/loading", M{"loading": true})
	require.Equal(t, http.StatusOK, rec.Code)
	view = getView(t, s, base+"/transcript")
	assert.True(t, view.Loading)
	assert.Empty(t, view.Segments)

	rec, res := doRequest(t, s, http.MethodGet, base+"/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loading":true}`, string(res.Data))
}

func TestGraph(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cid := createConversation(t, s, "sql")
	base := "/api/conversations/" + cid

	rec, res := doRequest(t, s, http.MethodGet, base+"/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"noGraph":true}`, string(res.Data))

	postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.Message{Text: "```py\nprint(1)\n```"}}})
	_, res = doRequest(t, s, http.MethodGet, base+"/graph", nil)
	var ng struct {
		NoGraph bool   `json:"noGraph"`
		Reason  string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &ng))
	assert.True(t, ng.NoGraph)
	assert.NotEmpty(t, ng.Reason)

	postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.Message{Text: chartMessage}}})
	_, res = doRequest(t, s, http.MethodGet, base+"/graph", nil)
	var g struct {
		NoGraph bool `json:"noGraph"`
		Config  struct {
			Type string `json:"type"`
			Data struct {
				Labels   []string `json:"labels"`
				Datasets []struct {
					Data []float64 `json:"data"`
				} `json:"datasets"`
			} `json:"data"`
		} `json:"config"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &g))
	assert.False(t, g.NoGraph)
	assert.Equal(t, "bar", g.Config.Type)
	assert.Equal(t, []string{"Q1", "Q2"}, g.Config.Data.Labels)
	assert.Equal(t, []float64{3, 4}, g.Config.Data.Datasets[0].Data)
}

func TestInvoke(t *testing.T) {
	iv := &fakeInvoker{result: `{"total": 7}`}
	s, _ := newTestServer(t, iv)
	cid := createConversation(t, s, "sql")
	base := "/api/conversations/" + cid

	say := postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.Message{Text: "hi"}}})
	query := postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.ActionRequest{Query: "select count(*)"}}})

	rec, _ := doRequest(t, s, http.MethodPost, base+"/invoke", M{"eventId": say.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = doRequest(t, s, http.MethodPost, base+"/invoke", M{"eventId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, iv.calls)

	rec, res := doRequest(t, s, http.MethodPost, base+"/invoke", M{"eventId": query.ID}, &http.Cookie{Name: "db", Value: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, iv.calls)
	assert.Equal(t, "http://db.local/query", iv.resource)
	assert.Equal(t, "select count(*)", iv.query)
	assert.Equal(t, "s3cret", iv.credential)

	var out convo.Event
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Equal(t, convo.SenderUser, out.Sender)
	assert.Equal(t, []convo.Payload{convo.ActionResult{Result: `{"total": 7}`}}, out.Payloads)

	view := getView(t, s, base+"/transcript")
	segs := view.Segments
	last := segs[len(segs)-1]
	assert.Equal(t, transcript.KindAgentQueryResult, last.Kind)
	assert.Equal(t, "{\n  \"total\": 7\n}", last.Text)
}

func TestInvokeFailure(t *testing.T) {
	iv := &fakeInvoker{err: errors.New("connection refused")}
	s, _ := newTestServer(t, iv)
	cid := createConversation(t, s, "sql")
	query := postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.ActionRequest{Query: "q"}}})

	rec, res := doRequest(t, s, http.MethodPost, "/api/conversations/"+cid+"/invoke", M{"eventId": query.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, iv.credential)
	var out convo.Event
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Equal(t, []convo.Payload{convo.Failure{Text: "connection refused"}}, out.Payloads)

	view := getView(t, s, "/api/conversations/"+cid+"/transcript")
	last := view.Segments[len(view.Segments)-1]
	assert.Equal(t, transcript.KindUserError, last.Kind)
}

func TestInvokeWithoutAction(t *testing.T) {
	iv := new(fakeInvoker)
	s, _ := newTestServer(t, iv)
	cid := createConversation(t, s, "bare")
	query := postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.ActionRequest{Query: "q"}}})

	rec, _ := doRequest(t, s, http.MethodPost, "/api/conversations/"+cid+"/invoke", M{"eventId": query.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, iv.calls)
}

func TestInvokeRateLimit(t *testing.T) {
	s, _ := newTestServerWith(t, Config{InvokeRate: "1-M"})

	cid := createConversation(t, s, "sql")
	query := postEvent(t, s, cid, convo.Event{Sender: convo.SenderAgent, Payloads: []convo.Payload{convo.ActionRequest{Query: "q"}}})
	path := "/api/conversations/" + cid + "/invoke"

	rec, _ := doRequest(t, s, http.MethodPost, path, M{"eventId": query.ID})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doRequest(t, s, http.MethodPost, path, M{"eventId": query.ID})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCookieCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "db", Value: "token"})
	var cred Credentials = cookieCredentials{req}
	assert.Equal(t, "token", cred.Credential("db"))
	assert.Empty(t, cred.Credential("other"))
	assert.Empty(t, cred.Credential(""))
}
