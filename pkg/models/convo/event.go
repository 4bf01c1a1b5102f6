package convo

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Sender 发言方
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Valid ...
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// Payload is the content carried by an event. It is one of
// Message, ActionRequest, ActionResult, InnerDialog, Failure or Warning.
type Payload interface {
	Field() string
	Content() string

	isPayload()
}

// Message plain chat text, for agent messages may contain ``` fences
type Message struct{ Text string }

// ActionRequest a query the agent wants to run
type ActionRequest struct{ Query string }

// ActionResult the result of a query
type ActionResult struct{ Result string }

// InnerDialog the agent thinking aloud
type InnerDialog struct{ Text string }

// Failure an error reported on the user side
type Failure struct{ Text string }

// Warning a warning from the agent
type Warning struct{ Text string }

func (Message) Field() string       { return fieldMessage }
func (ActionRequest) Field() string { return fieldActionRequested }
func (ActionResult) Field() string  { return fieldActionResult }
func (InnerDialog) Field() string   { return fieldInnerDialog }
func (Failure) Field() string       { return fieldError }
func (Warning) Field() string       { return fieldWarning }

func (p Message) Content() string       { return p.Text }
func (p ActionRequest) Content() string { return p.Query }
func (p ActionResult) Content() string  { return p.Result }
func (p InnerDialog) Content() string   { return p.Text }
func (p Failure) Content() string       { return p.Text }
func (p Warning) Content() string       { return p.Text }

func (Message) isPayload()       {}
func (ActionRequest) isPayload() {}
func (ActionResult) isPayload()  {}
func (InnerDialog) isPayload()   {}
func (Failure) isPayload()       {}
func (Warning) isPayload()       {}

const (
	fieldMessage         = "message"
	fieldActionRequested = "actionRequested"
	fieldActionResult    = "actionResult"
	fieldInnerDialog     = "innerDialog"
	fieldError           = "error"
	fieldWarning         = "warning"
)

// Event one item of a conversation
type Event struct {
	ID            string
	Sender        Sender
	Timestamp     time.Time
	DisableTyping bool
	Payloads      []Payload
}

type Events []Event

// NewEvent return an event with a fresh id and the current time
func NewEvent(sender Sender, payloads ...Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		Sender:    sender,
		Timestamp: time.Now(),
		Payloads:  payloads,
	}
}

// Find return the first payload of type T carried by ev
func Find[T Payload](ev Event) (out T, ok bool) {
	for _, p := range ev.Payloads {
		if out, ok = p.(T); ok {
			return
		}
	}
	return
}

// Has ...
func Has[T Payload](ev Event) bool {
	_, ok := Find[T](ev)
	return ok
}

// eventBody is the wire form of the payloads, one optional field each
type eventBody struct {
	Message         string `json:"message,omitempty"`
	ActionRequested string `json:"actionRequested,omitempty"`
	ActionResult    string `json:"actionResult,omitempty"`
	InnerDialog     string `json:"innerDialog,omitempty"`
	Error           string `json:"error,omitempty"`
	Warning         string `json:"warning,omitempty"`
}

func (b *eventBody) set(field, content string) {
	switch field {
	case fieldMessage:
		b.Message = content
	case fieldActionRequested:
		b.ActionRequested = content
	case fieldActionResult:
		b.ActionResult = content
	case fieldInnerDialog:
		b.InnerDialog = content
	case fieldError:
		b.Error = content
	case fieldWarning:
		b.Warning = content
	}
}

type eventWire struct {
	ID            string    `json:"id"`
	Sender        Sender    `json:"sender"`
	Timestamp     time.Time `json:"timestamp"`
	DisableTyping bool      `json:"disableTyping,omitempty"`
	Event         eventBody `json:"event"`
}

// MarshalJSON implements the json.Marshaler interface.
func (z Event) MarshalJSON() ([]byte, error) {
	w := eventWire{
		ID:            z.ID,
		Sender:        z.Sender,
		Timestamp:     z.Timestamp,
		DisableTyping: z.DisableTyping,
	}
	for _, p := range z.Payloads {
		w.Event.set(p.Field(), p.Content())
	}
	return json.Marshal(&w)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// Empty fields are treated as absent.
func (z *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ev := Event{
		ID:            w.ID,
		Sender:        w.Sender,
		Timestamp:     w.Timestamp,
		DisableTyping: w.DisableTyping,
	}
	if len(w.Event.Message) > 0 {
		ev.Payloads = append(ev.Payloads, Message{w.Event.Message})
	}
	if len(w.Event.ActionRequested) > 0 {
		ev.Payloads = append(ev.Payloads, ActionRequest{w.Event.ActionRequested})
	}
	if len(w.Event.ActionResult) > 0 {
		ev.Payloads = append(ev.Payloads, ActionResult{w.Event.ActionResult})
	}
	if len(w.Event.InnerDialog) > 0 {
		ev.Payloads = append(ev.Payloads, InnerDialog{w.Event.InnerDialog})
	}
	if len(w.Event.Error) > 0 {
		ev.Payloads = append(ev.Payloads, Failure{w.Event.Error})
	}
	if len(w.Event.Warning) > 0 {
		ev.Payloads = append(ev.Payloads, Warning{w.Event.Warning})
	}
	*z = ev
	return nil
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (z *Event) MarshalBinary() (data []byte, err error) {
	data, err = json.Marshal(z)
	return
}

// UnmarshalBinary unmarshal a binary representation of itself. for redis result.Scan
func (z *Event) UnmarshalBinary(data []byte) error {
	var t Event
	err := json.Unmarshal(data, &t)
	if err == nil {
		*z = t
	}
	return err
}
