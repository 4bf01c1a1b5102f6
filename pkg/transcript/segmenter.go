package transcript

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/liut/parlor/pkg/models/convo"
)

// DefaultUserName shown on user section breaks
const DefaultUserName = "You"

// Options of a Segmenter
type Options struct {
	// CharDelay ms per typed character, DefaultCharDelay when zero
	CharDelay int64
	// CodeAdvancesClock counts fenced bodies as typed text. Off by default:
	// only prose and inner dialog move the clock.
	CodeAdvancesClock bool

	UserName  string
	AgentName string
}

// Segmenter builds transcripts. It holds no state between builds and is
// safe for concurrent use.
type Segmenter struct {
	opts Options
}

// New ...
func New(opts Options) *Segmenter {
	if opts.CharDelay <= 0 {
		opts.CharDelay = DefaultCharDelay
	}
	if len(opts.UserName) == 0 {
		opts.UserName = DefaultUserName
	}
	return &Segmenter{opts: opts}
}

// WithAgentName return a copy naming the agent
func (s *Segmenter) WithAgentName(name string) *Segmenter {
	opts := s.opts
	opts.AgentName = name
	return &Segmenter{opts: opts}
}

type build struct {
	*Segmenter
	tr     *Transcript
	clock  *Clock
	titler cases.Caser
	last   convo.Sender
}

// Build turns events and an optional partial message into a transcript.
func (s *Segmenter) Build(events convo.Events, partial string) *Transcript {
	var first *time.Time
	if len(events) > 0 {
		first = &events[0].Timestamp
	}
	b := &build{
		Segmenter: s,
		tr:        new(Transcript),
		clock:     NewClock(first, s.opts.CharDelay),
		titler:    cases.Title(language.Und, cases.NoLower),
	}

	for _, ev := range events {
		b.clock.Observe(ev.Timestamp)
		if !ev.Sender.Valid() {
			logger().Infow("skip event", "id", ev.ID, "sender", ev.Sender)
			continue
		}
		b.enter(ev.Sender, ev.ID)

		var revealed int
		if ev.Sender == convo.SenderUser {
			b.user(ev)
		} else {
			revealed = b.agent(ev)
		}
		b.clock.Advance(revealed)
	}

	if len(partial) > 0 {
		b.enter(convo.SenderAgent, "")
		b.tr.add(Segment{
			Kind:       KindAgentPartial,
			Text:       partial,
			RevealTime: b.clock.Now,
			Speaker:    convo.SenderAgent,
		})
	}

	return b.tr
}

// enter inserts a section break when the speaker changes
func (b *build) enter(sender convo.Sender, eventID string) {
	if sender == b.last {
		return
	}
	b.last = sender
	name := b.opts.AgentName
	if sender == convo.SenderUser {
		name = b.opts.UserName
	}
	b.tr.add(Segment{
		Kind:       KindSectionBreak,
		RevealTime: b.clock.Now,
		EventID:    eventID,
		Speaker:    sender,
		Name:       b.titler.String(name),
	})
}

// user events emit every payload they carry, without precedence
func (b *build) user(ev convo.Event) {
	seg := Segment{RevealTime: b.clock.Now, EventID: ev.ID, Speaker: ev.Sender}
	if p, ok := convo.Find[convo.Message](ev); ok {
		seg.Kind, seg.Text = KindUserMessage, p.Text
		b.tr.add(seg)
	}
	if p, ok := convo.Find[convo.ActionResult](ev); ok {
		seg.Kind, seg.Text = KindAgentQueryResult, NormalizeJSON(p.Result)
		b.tr.add(seg)
	}
	if p, ok := convo.Find[convo.Failure](ev); ok {
		seg.Kind, seg.Text = KindUserError, p.Text
		b.tr.add(seg)
	}
}

// agent events emit one payload: message, then action, then inner dialog,
// then warning. It returns the count of typed characters.
func (b *build) agent(ev convo.Event) int {
	seg := Segment{RevealTime: b.clock.Now, EventID: ev.ID, Speaker: ev.Sender}
	if p, ok := convo.Find[convo.Message](ev); ok {
		return b.message(ev, p.Text)
	}
	if req, ok := convo.Find[convo.ActionRequest](ev); ok {
		if res, ok := convo.Find[convo.ActionResult](ev); ok {
			seg.Kind, seg.Text = KindAgentQueryResult, NormalizeJSON(res.Result)
		} else {
			seg.Kind, seg.Text = KindAgentQuery, req.Query
		}
		b.tr.add(seg)
		return 0
	}
	if p, ok := convo.Find[convo.InnerDialog](ev); ok {
		seg.Kind, seg.Text, seg.Animate = KindAgentInnerDialog, p.Text, true
		b.tr.add(seg)
		return Len(p.Text)
	}
	if p, ok := convo.Find[convo.Warning](ev); ok {
		seg.Kind, seg.Text, seg.Animate = KindAgentWarning, p.Text, true
		b.tr.add(seg)
		return Len(p.Text)
	}
	if convo.Has[convo.ActionResult](ev) {
		logger().Debugw("agent result without request", "id", ev.ID)
	}
	return 0
}

// message splits an agent message into prose, code and chart segments.
func (b *build) message(ev convo.Event, text string) (revealed int) {
	local := b.clock.Now
	if Unterminated(text) {
		logger().Debugw("unterminated fence, last part taken as code", "id", ev.ID)
	}
	for _, part := range SplitFences(text) {
		seg := Segment{RevealTime: local, EventID: ev.ID, Speaker: ev.Sender, Text: part.Text}
		if !part.Fenced {
			seg.Kind, seg.Animate = KindAgentMessage, !ev.DisableTyping
			b.tr.add(seg)
			n := Len(part.Text)
			local += b.clock.Span(n)
			revealed += n
			continue
		}

		seg.Kind, seg.Language = KindAgentCode, CodeLanguage(part.Text)
		b.tr.add(seg)

		chart := ClassifyChart(part.Text)
		b.tr.add(Segment{
			Kind:       KindAgentChart,
			Text:       ChartInput(part.Text),
			RevealTime: local,
			EventID:    ev.ID,
			Speaker:    ev.Sender,
			Chart:      chart,
		})
		b.tr.LastCode, b.tr.LastChart = part.Text, chart

		if b.opts.CodeAdvancesClock {
			n := Len(part.Text)
			local += b.clock.Span(n)
			revealed += n
		}
	}
	return
}
