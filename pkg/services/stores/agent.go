package stores

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liut/parlor/pkg/models/convo"
)

// AgentStore agent descriptors
type AgentStore interface {
	List(ctx context.Context) convo.Agents
	Get(id string) (*convo.Agent, error)
}

type presetAgents struct {
	agents convo.Agents
}

// NewAgents ...
func NewAgents(agents ...convo.Agent) AgentStore {
	return &presetAgents{agents: agents}
}

func (s *presetAgents) List(ctx context.Context) convo.Agents {
	return s.agents
}

func (s *presetAgents) Get(id string) (*convo.Agent, error) {
	if len(id) == 0 {
		return nil, ErrEmptyKey
	}
	if a, ok := s.agents.Get(id); ok {
		return a, nil
	}
	return nil, ErrNotFound
}

// LoadAgents read agents from the preset file, the store is never nil
func LoadAgents(name string) (AgentStore, error) {
	doc, err := LoadPreset(name)
	if err != nil {
		return NewAgents(), err
	}
	logger().Infow("loaded preset", "agents", len(doc.Agents))
	return NewAgents(doc.Agents...), nil
}

func LoadPreset(name string) (doc convo.Preset, err error) {
	if len(name) > 0 {
		var yf *os.File
		yf, err = os.Open(name)
		if err != nil {
			logger().Infow("load preset fail", "file", name, "err", err)
			return
		}
		defer yf.Close()
		err = yaml.NewDecoder(yf).Decode(&doc)
		if err != nil {
			logger().Infow("decode preset fail", "err", err)
			return
		}
	}

	return
}
