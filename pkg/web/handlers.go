package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/marcsv/go-binder/binder"
	"github.com/spf13/cast"

	"github.com/liut/parlor/pkg/models/convo"
	"github.com/liut/parlor/pkg/services/charts"
	"github.com/liut/parlor/pkg/services/stores"
	"github.com/liut/parlor/pkg/transcript"
)

func (s *server) getHighlightCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(s.hl.CSS()))
}

func (s *server) listAgents(w http.ResponseWriter, r *http.Request) {
	data := s.sto.Agents().List(r.Context())
	apiOk(w, r, data, len(data))
}

func (s *server) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.sto.Agents().Get(chi.URLParam(r, "aid"))
	if err != nil {
		apiFail(w, r, 404, err)
		return
	}
	apiOk(w, r, agent)
}

// agentName 未知的 agent 使用其 id 作为名称
func (s *server) agentName(id string) string {
	if agent, err := s.sto.Agents().Get(id); err == nil && len(agent.Name) > 0 {
		return agent.Name
	}
	return id
}

type conversationReq struct {
	Agent string `json:"agent" form:"agent"`
}

func (s *server) postConversation(w http.ResponseWriter, r *http.Request) {
	var param conversationReq
	if err := binder.BindBody(r, &param); err != nil {
		apiFail(w, r, 400, err)
		return
	}
	cs, err := s.sto.CreateConversation(r.Context(), param.Agent)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) || errors.Is(err, stores.ErrEmptyKey) {
			apiFail(w, r, 400, err)
		} else {
			apiFail(w, r, 503, err)
		}
		return
	}
	logger().Infow("created conversation", "id", cs.GetID(), "agent", param.Agent)
	apiOk(w, r, &convo.Conversation{ID: cs.GetID(), Agent: param.Agent})
}

func (s *server) getConversation(w http.ResponseWriter, r *http.Request) {
	_, meta := conversationFromContext(r.Context())
	apiOk(w, r, meta)
}

func (s *server) getEvents(w http.ResponseWriter, r *http.Request) {
	cs, _ := conversationFromContext(r.Context())
	data, err := cs.ListEvents(r.Context())
	if err != nil {
		apiFail(w, r, 503, err)
		return
	}
	apiOk(w, r, data, len(data))
}

func (s *server) postEvent(w http.ResponseWriter, r *http.Request) {
	var ev convo.Event
	if err := render.DecodeJSON(r.Body, &ev); err != nil {
		apiFail(w, r, 400, err)
		return
	}
	if !ev.Sender.Valid() {
		apiFail(w, r, 400, "invalid sender")
		return
	}
	if len(ev.Payloads) == 0 {
		apiFail(w, r, 400, "empty event")
		return
	}
	cs, _ := conversationFromContext(r.Context())
	if err := cs.AddEvent(r.Context(), &ev); err != nil {
		apiFail(w, r, 503, err)
		return
	}
	apiOk(w, r, &ev)
}

type partialReq struct {
	Text string `json:"text" form:"text"`
}

func (s *server) putPartial(w http.ResponseWriter, r *http.Request) {
	var param partialReq
	if err := binder.BindBody(r, &param); err != nil {
		apiFail(w, r, 400, err)
		return
	}
	s.setPartial(w, r, param.Text)
}

func (s *server) deletePartial(w http.ResponseWriter, r *http.Request) {
	s.setPartial(w, r, "")
}

func (s *server) setPartial(w http.ResponseWriter, r *http.Request, text string) {
	cs, _ := conversationFromContext(r.Context())
	if err := cs.SetPartial(r.Context(), text); err != nil {
		apiFail(w, r, 503, err)
		return
	}
	apiOk(w, r)
}

type loadingReq struct {
	Loading bool `json:"loading" form:"loading"`
}

func (s *server) putLoading(w http.ResponseWriter, r *http.Request) {
	var param loadingReq
	if err := binder.BindBody(r, &param); err != nil {
		apiFail(w, r, 400, err)
		return
	}
	cs, _ := conversationFromContext(r.Context())
	if err := cs.SetLoading(r.Context(), param.Loading); err != nil {
		apiFail(w, r, 503, err)
		return
	}
	apiOk(w, r)
}

// TranscriptView what the browser renders
type TranscriptView struct {
	Loading  bool                `json:"loading"`
	Segments transcript.Segments `json:"segments,omitempty"`

	LastCode  string                  `json:"lastCode,omitempty"`
	LastChart *transcript.ChartResult `json:"lastChart,omitempty"`

	// Graph the browser chart config of LastChart, streams only
	Graph any `json:"graph,omitempty"`
}

// buildView 会话仍在加载时只返回 loading
func (s *server) buildView(ctx context.Context, cs stores.Conversation, meta *convo.Conversation, highlight bool) (*TranscriptView, *transcript.Transcript, error) {
	if meta.Loading {
		return &TranscriptView{Loading: true}, nil, nil
	}
	events, err := cs.ListEvents(ctx)
	if err != nil {
		return nil, nil, err
	}
	tr := s.seg.WithAgentName(s.agentName(meta.Agent)).Build(events, meta.PartialMessage)
	if highlight {
		for i := range tr.Segments {
			if tr.Segments[i].Kind == transcript.KindAgentCode {
				tr.Segments[i].HTML = s.hl.HTML(tr.Segments[i].Text, tr.Segments[i].Language)
			}
		}
	}
	return &TranscriptView{
		Segments:  tr.Segments,
		LastCode:  tr.LastCode,
		LastChart: tr.LastChart,
	}, tr, nil
}

func (s *server) getTranscript(w http.ResponseWriter, r *http.Request) {
	cs, meta := conversationFromContext(r.Context())
	view, _, err := s.buildView(r.Context(), cs, meta, cast.ToBool(r.URL.Query().Get("highlight")))
	if err != nil {
		apiFail(w, r, 503, err)
		return
	}
	apiOk(w, r, view, len(view.Segments))
}

// getGraph 返回最后一个图表的浏览器配置
func (s *server) getGraph(w http.ResponseWriter, r *http.Request) {
	cs, meta := conversationFromContext(r.Context())
	_, tr, err := s.buildView(r.Context(), cs, meta, false)
	if err != nil {
		apiFail(w, r, 503, err)
		return
	}
	if tr == nil {
		apiOk(w, r, M{"loading": true})
		return
	}
	if tr.LastChart.NoGraph() {
		res := M{"noGraph": true}
		if tr.LastChart != nil {
			res["reason"] = tr.LastChart.Reason
		}
		apiOk(w, r, res)
		return
	}

	surface := charts.NewSurface(s.cr)
	defer surface.Release()
	h, err := surface.Draw(r.Context(), tr.LastChart.Spec)
	if err != nil {
		apiFail(w, r, 500, err)
		return
	}
	apiOk(w, r, M{"noGraph": false, "config": graphPayload(h)})
}

func graphPayload(h charts.Handle) any {
	if ch, ok := h.(*charts.ConfigHandle); ok {
		return ch.Payload()
	}
	return nil
}

type invokeReq struct {
	EventID string `json:"eventId" form:"eventId"`
}

// postInvoke 执行 agent 请求的查询，结果作为用户事件追加到会话
func (s *server) postInvoke(w http.ResponseWriter, r *http.Request) {
	var param invokeReq
	if err := binder.BindBody(r, &param); err != nil {
		apiFail(w, r, 400, err)
		return
	}
	ctx := r.Context()
	cs, meta := conversationFromContext(ctx)
	ev, err := cs.GetEvent(ctx, param.EventID)
	if err != nil {
		apiFail(w, r, 404, err)
		return
	}
	req, ok := convo.Find[convo.ActionRequest](*ev)
	if !ok || ev.Sender != convo.SenderAgent {
		apiFail(w, r, 400, "event is not a query")
		return
	}
	if convo.Has[convo.ActionResult](*ev) {
		apiFail(w, r, 409, "query already answered")
		return
	}
	agent, err := s.sto.Agents().Get(meta.Agent)
	if err != nil {
		apiFail(w, r, 404, err)
		return
	}
	action, ok := agent.FirstAction()
	if !ok {
		apiFail(w, r, 400, "agent has no action")
		return
	}

	credential := cookieCredentials{r}.Credential(action.ID)
	result, err := s.iv.Invoke(ctx, action.Resource, req.Query, credential)
	var out convo.Event
	if err != nil {
		logger().Infow("invoke fail", "agent", agent.ID, "action", action.ID, "err", err)
		out = convo.NewEvent(convo.SenderUser, convo.Failure{Text: err.Error()})
	} else {
		out = convo.NewEvent(convo.SenderUser, convo.ActionResult{Result: result})
	}
	if err := cs.AddEvent(ctx, &out); err != nil {
		apiFail(w, r, 503, err)
		return
	}
	apiOk(w, r, &out)
}

// Credentials of actions
type Credentials interface {
	Credential(actionID string) string
}

var _ Credentials = cookieCredentials{}

// cookieCredentials 每个 action 的凭据保存在以其 id 命名的 cookie 中
type cookieCredentials struct {
	r *http.Request
}

func (c cookieCredentials) Credential(actionID string) string {
	if len(actionID) == 0 {
		return ""
	}
	ck, err := c.r.Cookie(actionID)
	if err != nil {
		return ""
	}
	return ck.Value
}
