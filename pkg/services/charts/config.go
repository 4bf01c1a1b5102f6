package charts

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/liut/parlor/pkg/transcript"
)

// ConfigData the data block of a browser chart config
type ConfigData struct {
	Labels   []string             `json:"labels"`
	Datasets []transcript.Dataset `json:"datasets"`
}

// Config is the configuration the browser charting library is built with
type Config struct {
	Type    string         `json:"type"`
	Data    ConfigData     `json:"data"`
	Options map[string]any `json:"options,omitempty"`
}

// NewConfig ...
func NewConfig(spec *transcript.Chart) Config {
	return Config{
		Type:    spec.Type,
		Data:    ConfigData{Labels: spec.Labels, Datasets: spec.Datasets},
		Options: spec.Options,
	}
}

// ConfigRenderer renders a chart as its encoded browser config
type ConfigRenderer struct {
	live atomic.Int64
}

var _ Renderer = (*ConfigRenderer)(nil)

// Render ...
func (r *ConfigRenderer) Render(ctx context.Context, spec *transcript.Chart) (Handle, error) {
	b, err := json.Marshal(NewConfig(spec))
	if err != nil {
		return nil, err
	}
	r.live.Add(1)
	return &ConfigHandle{payload: b, r: r}, nil
}

// Live count of handles not yet destroyed
func (r *ConfigRenderer) Live() int64 {
	return r.live.Load()
}

// ConfigHandle ...
type ConfigHandle struct {
	payload []byte
	r       *ConfigRenderer
	done    atomic.Bool
}

// Payload the JSON config, nil after Destroy
func (h *ConfigHandle) Payload() json.RawMessage {
	if h.done.Load() {
		return nil
	}
	return h.payload
}

// Destroy ...
func (h *ConfigHandle) Destroy() {
	if h.done.CompareAndSwap(false, true) {
		h.r.live.Add(-1)
	}
}
