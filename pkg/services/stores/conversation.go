package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cupogo/andvari/models/oid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/liut/parlor/pkg/models/convo"
)

const (
	historyLifetimeS = time.Second * 86400
	historyMaxLength = 500
	partialLifetime  = time.Minute * 10
)

// change notices published to watchers
const (
	ChangeEvent   = "event"
	ChangePartial = "partial"
	ChangeLoading = "loading"
)

const (
	fieldAgent   = "agent"
	fieldLoading = "loading"
)

type Conversation interface {
	GetID() string
	Meta(ctx context.Context) (*convo.Conversation, error)
	AddEvent(ctx context.Context, ev *convo.Event) error
	ListEvents(ctx context.Context) (convo.Events, error)
	GetEvent(ctx context.Context, id string) (*convo.Event, error)
	SetPartial(ctx context.Context, text string) error
	SetLoading(ctx context.Context, loading bool) error
	Clear(ctx context.Context) error
	// Watch delivers a change notice after every write until ctx is done
	Watch(ctx context.Context) (<-chan string, error)
}

func newConversation(w *Wrap, id any) *conversation {
	cid := oid.Cast(id)
	if cid.IsZero() {
		cid = oid.NewID(oid.OtEvent)
	}
	return &conversation{id: cid, rc: w.rc, limits: w.limits}
}

type conversation struct {
	id     oid.OID
	rc     RedisClient
	limits Limits
}

func (s *conversation) GetID() string {
	return s.id.String()
}

func (s *conversation) init(ctx context.Context, agent string) error {
	key := s.metaKey()
	if err := s.rc.HSet(ctx, key, fieldAgent, agent, fieldLoading, "0").Err(); err != nil {
		return err
	}
	return s.rc.Expire(ctx, key, s.limits.HistoryLifetime).Err()
}

// Meta return ErrNotFound for an unknown conversation
func (s *conversation) Meta(ctx context.Context) (*convo.Conversation, error) {
	m, err := s.rc.HGetAll(ctx, s.metaKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	obj := &convo.Conversation{ID: s.GetID(), Agent: m[fieldAgent]}
	obj.Loading, _ = strconv.ParseBool(m[fieldLoading])

	obj.PartialMessage, err = s.rc.Get(ctx, s.partialKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return obj, nil
}

// AddEvent fills id and timestamp when empty
func (s *conversation) AddEvent(ctx context.Context, ev *convo.Event) error {
	if !ev.Sender.Valid() {
		return fmt.Errorf("invalid sender %q", ev.Sender)
	}
	if len(ev.ID) == 0 {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	key := s.getKey()
	b, err := ev.MarshalBinary()
	if err != nil {
		return err
	}
	res := s.rc.RPush(ctx, key, b)
	err = res.Err()
	if err == nil {
		logger().Debugw("add event ok", "id", ev.ID, "sender", ev.Sender)
		count, _ := res.Result()
		if err = s.rc.Expire(ctx, key, s.limits.HistoryLifetime).Err(); err != nil {
			return err
		}
		if count > s.limits.HistoryMaxLength {
			logger().Infow("history length overflow", "count", count)
			err = s.rc.LPop(ctx, key).Err()
		}
	}
	if err != nil {
		logger().Infow("add event fail", "key", key, "err", err)
		return err
	}
	s.notify(ctx, ChangeEvent)
	return nil
}

func (s *conversation) ListEvents(ctx context.Context) (data convo.Events, err error) {
	key := s.getKey()
	ss := s.rc.LRange(ctx, key, 0, -1)
	err = ss.ScanSlice(&data)
	return
}

func (s *conversation) GetEvent(ctx context.Context, id string) (*convo.Event, error) {
	if len(id) == 0 {
		return nil, ErrEmptyKey
	}
	data, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range data {
		if data[i].ID == id {
			return &data[i], nil
		}
	}
	return nil, ErrNotFound
}

// SetPartial keeps the in-progress agent message, empty text clears it
func (s *conversation) SetPartial(ctx context.Context, text string) (err error) {
	if len(text) == 0 {
		err = s.rc.Del(ctx, s.partialKey()).Err()
	} else {
		err = s.rc.Set(ctx, s.partialKey(), text, s.limits.PartialLifetime).Err()
	}
	if err != nil {
		logger().Infow("set partial fail", "id", s.GetID(), "err", err)
		return
	}
	s.notify(ctx, ChangePartial)
	return
}

func (s *conversation) SetLoading(ctx context.Context, loading bool) error {
	if err := s.rc.HSet(ctx, s.metaKey(), fieldLoading, strconv.FormatBool(loading)).Err(); err != nil {
		return err
	}
	s.notify(ctx, ChangeLoading)
	return nil
}

func (s *conversation) Clear(ctx context.Context) error {
	return s.rc.Del(ctx, s.getKey(), s.partialKey(), s.metaKey()).Err()
}

func (s *conversation) Watch(ctx context.Context) (<-chan string, error) {
	ps := s.rc.Subscribe(ctx, s.chanKey())
	// wait for the subscription, so no write after Watch is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan string, 1)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *conversation) notify(ctx context.Context, change string) {
	if err := s.rc.Publish(ctx, s.chanKey(), change).Err(); err != nil {
		logger().Infow("publish change fail", "id", s.GetID(), "change", change, "err", err)
	}
}

func (s *conversation) getKey() string {
	return "convs-" + s.GetID()
}

func (s *conversation) metaKey() string {
	return "convm-" + s.GetID()
}

func (s *conversation) partialKey() string {
	return "convp-" + s.GetID()
}

func (s *conversation) chanKey() string {
	return "convc-" + s.GetID()
}
