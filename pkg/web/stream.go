package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/eventsource"
	"github.com/spf13/cast"

	"github.com/liut/parlor/pkg/services/charts"
	"github.com/liut/parlor/pkg/services/stores"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// watchView 先发送当前的 transcript，之后每次会话变化重建并发送，直到 ctx 结束。
// 最后一个图表画在 surface 上，结束时释放。
func (s *server) watchView(ctx context.Context, cs stores.Conversation, highlight bool, emit func(*TranscriptView) error) error {
	changes, err := cs.Watch(ctx)
	if err != nil {
		return err
	}

	surface := charts.NewSurface(s.cr)
	defer surface.Release()

	var (
		drawn bool
		code  string
		graph any
	)
	send := func() error {
		meta, err := cs.Meta(ctx)
		if err != nil {
			return err
		}
		view, tr, err := s.buildView(ctx, cs, meta, highlight)
		if err != nil {
			return err
		}
		if tr != nil && (!drawn || tr.LastCode != code) {
			drawn, code, graph = true, tr.LastCode, nil
			if !tr.LastChart.NoGraph() {
				h, err := surface.Draw(ctx, tr.LastChart.Spec)
				if err == nil {
					graph = graphPayload(h)
				}
			} else {
				_, _ = surface.Draw(ctx, nil)
			}
		}
		if tr != nil {
			view.Graph = graph
		}
		return emit(view)
	}

	if err = send(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			logger().Debugw("conversation changed", "id", cs.GetID(), "change", change)
			if err = send(); err != nil {
				return err
			}
		}
	}
}

func (s *server) streamTranscript(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	cs, _ := conversationFromContext(r.Context())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Add("Conversation-ID", cs.GetID())

	var idx int
	err := s.watchView(r.Context(), cs, cast.ToBool(r.URL.Query().Get("highlight")), func(view *TranscriptView) error {
		idx++
		if !writeEvent(w, strconv.Itoa(idx), view) {
			return io.ErrClosedPipe
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		logger().Infow("transcript stream done", "id", cs.GetID(), "err", err)
	}
}

// writeEvent write and auto flush
func writeEvent(w io.Writer, id string, m any) bool {
	var b []byte
	var err error
	if s, ok := m.(string); ok {
		b = []byte(s)
	} else {
		b, err = json.Marshal(m)
		if err != nil {
			logger().Infow("json marshal fail", "m", m, "err", err)
			return false
		}
	}

	if err = eventsource.WriteEvent(w, eventsource.Event{
		ID:   id,
		Data: b,
	}); err != nil {
		logger().Infow("eventsource write fail", "err", err)
		return false
	}

	return true
}

func (s *server) wsTranscript(w http.ResponseWriter, r *http.Request) {
	cs, _ := conversationFromContext(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger().Infow("ws upgrade fail", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 客户端断开时结束
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = s.watchView(ctx, cs, cast.ToBool(r.URL.Query().Get("highlight")), func(view *TranscriptView) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(view)
	})
	if err != nil {
		logger().Infow("ws stream done", "id", cs.GetID(), "err", err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
}
