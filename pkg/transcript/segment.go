package transcript

import (
	"fmt"

	"github.com/liut/parlor/pkg/models/convo"
)

// Kind of a display segment
type Kind int8

const (
	KindSectionBreak Kind = iota
	KindUserMessage
	KindUserError
	KindAgentMessage
	KindAgentCode
	KindAgentChart
	KindAgentQuery
	KindAgentQueryResult
	KindAgentInnerDialog
	KindAgentWarning
	KindAgentPartial
)

var kindNames = [...]string{
	KindSectionBreak:     "sectionBreak",
	KindUserMessage:      "userMessage",
	KindUserError:        "userError",
	KindAgentMessage:     "agentMessage",
	KindAgentCode:        "agentCode",
	KindAgentChart:       "agentChart",
	KindAgentQuery:       "agentQuery",
	KindAgentQueryResult: "agentQueryResult",
	KindAgentInnerDialog: "agentInnerDialog",
	KindAgentWarning:     "agentWarning",
	KindAgentPartial:     "agentPartial",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int8(k))
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid segment kind %d", int8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	s := string(b)
	for i, name := range kindNames {
		if name == s {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("invalid segment kind %q", s)
}

// Segment one renderable unit of the transcript
type Segment struct {
	Kind       Kind         `json:"kind"`
	Text       string       `json:"text"`
	RevealTime int64        `json:"revealTime"` // ms, start of the typing effect
	EventID    string       `json:"eventId,omitempty"`
	Speaker    convo.Sender `json:"speaker"`

	// display name of the speaker, section breaks only
	Name string `json:"name,omitempty"`
	// false: show the text at once
	Animate bool `json:"animate"`

	Language string       `json:"language,omitempty"` // code only
	Chart    *ChartResult `json:"chart,omitempty"`    // chart only
	HTML     string       `json:"html,omitempty"`     // highlighted code, filled by callers
}

type Segments []Segment

// Kinds ...
func (z Segments) Kinds() []Kind {
	out := make([]Kind, len(z))
	for i := range z {
		out[i] = z[i].Kind
	}
	return out
}

// Transcript the result of a build
type Transcript struct {
	Segments Segments `json:"segments"`

	// LastCode is the body of the last fenced block, LastChart its chart.
	LastCode  string       `json:"lastCode,omitempty"`
	LastChart *ChartResult `json:"lastChart,omitempty"`
}

func (z *Transcript) add(seg Segment) {
	z.Segments = append(z.Segments, seg)
}
