package stores

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/liut/parlor/pkg/settings"
)

// errors
var (
	ErrNotFound = errors.New("not found")
	ErrEmptyKey = errors.New("empty key")
)

// Storage ...
type Storage interface {
	Conversation(id any) Conversation
	CreateConversation(ctx context.Context, agent string) (Conversation, error)
	Agents() AgentStore
}

// Limits of conversation keys
type Limits struct {
	HistoryLifetime  time.Duration
	HistoryMaxLength int64
	PartialLifetime  time.Duration
}

// vars ...
var (
	_ Storage = (*Wrap)(nil)

	stoOnce sync.Once
	stoW    *Wrap
)

// Wrap implements Storage
type Wrap struct {
	rc     RedisClient
	limits Limits
	agents AgentStore
}

// NewWithRC return new instance of Wrap
func NewWithRC(rc RedisClient, agents AgentStore, limits Limits) *Wrap {
	if limits.HistoryLifetime <= 0 {
		limits.HistoryLifetime = historyLifetimeS
	}
	if limits.HistoryMaxLength <= 0 {
		limits.HistoryMaxLength = historyMaxLength
	}
	if limits.PartialLifetime <= 0 {
		limits.PartialLifetime = partialLifetime
	}
	return &Wrap{rc: rc, agents: agents, limits: limits}
}

// Sgt start and return a singleton instance of Storage
func Sgt() *Wrap {
	stoOnce.Do(func() {
		agents, err := LoadAgents(settings.Current.PresetFile)
		if err != nil {
			logger().Warnw("load agents fail", "file", settings.Current.PresetFile, "err", err)
		}
		stoW = NewWithRC(SgtRC(), agents, Limits{
			HistoryLifetime:  settings.Current.HistoryLifetime,
			HistoryMaxLength: settings.Current.HistoryMaxLength,
			PartialLifetime:  settings.Current.PartialLifetime,
		})
	})
	return stoW
}

func (w *Wrap) Close() {
	_ = w.rc.Close()
}

// Conversation return an existing or new conversation
func (w *Wrap) Conversation(id any) Conversation {
	return newConversation(w, id)
}

// CreateConversation a conversation with a fresh id
func (w *Wrap) CreateConversation(ctx context.Context, agent string) (Conversation, error) {
	if _, err := w.agents.Get(agent); err != nil {
		return nil, err
	}
	cs := newConversation(w, nil)
	if err := cs.init(ctx, agent); err != nil {
		return nil, err
	}
	return cs, nil
}

func (w *Wrap) Agents() AgentStore { return w.agents }
