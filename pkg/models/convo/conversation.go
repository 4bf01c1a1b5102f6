package convo

// Conversation metadata, the events are kept apart
type Conversation struct {
	ID             string `json:"id"`
	Agent          string `json:"agent"`
	Loading        bool   `json:"loading"`
	PartialMessage string `json:"partialMessage,omitempty"`
}
