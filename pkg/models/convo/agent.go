package convo

// Action an invokable action of an agent
type Action struct {
	ID       string `json:"id" yaml:"id"`
	Resource string `json:"resource" yaml:"resource"` // endpoint of the query
}

// Agent descriptor
type Agent struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
}

type Agents []Agent

// FirstAction the action used by query invocation
func (z *Agent) FirstAction() (Action, bool) {
	if len(z.Actions) == 0 {
		return Action{}, false
	}
	return z.Actions[0], true
}

// Get ...
func (z Agents) Get(id string) (*Agent, bool) {
	for i := range z {
		if z[i].ID == id {
			return &z[i], true
		}
	}
	return nil, false
}

// Preset 从 yaml 文件加载
type Preset struct {
	Agents Agents `json:"agents" yaml:"agents"`
}
