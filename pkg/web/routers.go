package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/liut/parlor/pkg/models/convo"
	"github.com/liut/parlor/pkg/services/stores"
)

type M = render.M

type ctxKey int

const (
	ctxKeyConversation ctxKey = iota
	ctxKeyMeta
)

func (s *server) strapRouter() {

	s.ar.Get("/ping", handlerPing)
	s.ar.Get("/highlight.css", s.getHighlightCSS)

	s.ar.Route("/api", func(r chi.Router) {
		r.Get("/agents", s.listAgents)
		r.Get("/agents/{aid}", s.getAgent)
		r.Post("/conversations", s.postConversation)

		r.Route("/conversations/{cid}", func(r chi.Router) {
			r.Use(s.conversationCtx)
			r.Get("/", s.getConversation)
			r.Get("/events", s.getEvents)
			r.Post("/events", s.postEvent)
			r.Put("/partial", s.putPartial)
			r.Delete("/partial", s.deletePartial)
			r.Put("/loading", s.putLoading)
			r.Get("/transcript", s.getTranscript)
			r.Get("/transcript-sse", s.streamTranscript)
			r.Get("/ws", s.wsTranscript)
			r.Get("/graph", s.getGraph)
			r.With(s.lmt.Handler).Post("/invoke", s.postInvoke)
		})
	})

	if s.cfg.DocHandler != nil {
		s.ar.Get("/", s.cfg.DocHandler.ServeHTTP)
		s.ar.NotFound(s.cfg.DocHandler.ServeHTTP)
	}
}

// conversationCtx 加载会话，未知的会话返回 404
func (s *server) conversationCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs := s.sto.Conversation(chi.URLParam(r, "cid"))
		meta, err := cs.Meta(r.Context())
		if err != nil {
			if errors.Is(err, stores.ErrNotFound) {
				apiFail(w, r, 404, err)
			} else {
				apiFail(w, r, 503, err)
			}
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyConversation, cs)
		ctx = context.WithValue(ctx, ctxKeyMeta, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func conversationFromContext(ctx context.Context) (stores.Conversation, *convo.Conversation) {
	cs, _ := ctx.Value(ctxKeyConversation).(stores.Conversation)
	meta, _ := ctx.Value(ctxKeyMeta).(*convo.Conversation)
	return cs, meta
}

func handlerPing(w http.ResponseWriter, r *http.Request) {
	render.Data(w, r, []byte("Pong\n"))
}

func apiFail(w http.ResponseWriter, r *http.Request, status int, err interface{}) {
	res := render.M{
		"status": status,
		"error":  err,
	}
	switch ret := err.(type) {
	case error:
		res["error"] = ret.Error()
		res["message"] = ret.Error()
	case fmt.Stringer:
		res["message"] = ret.String()
	case string, *string, []byte:
		res["message"] = ret
	}
	render.Status(r, status)
	render.JSON(w, r, res)
}

type RespDone struct {
	Status int `json:"status"`
	Data   any `json:"data,omitempty"`
	Count  int `json:"count,omitempty"`
}

func apiOk(w http.ResponseWriter, r *http.Request, args ...any) {
	res := &RespDone{}
	if len(args) > 0 && args[0] != nil {
		res.Data = args[0]
		if len(args) > 1 {
			if c, ok := args[1].(int); ok {
				res.Count = c
			}
		}
	}

	render.JSON(w, r, res)
}
