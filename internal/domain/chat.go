package domain

// ChatMessage is the provider-agnostic chat message shape sent to LLM
// integrations. Role uses the provider vocabulary (system, user, assistant).
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
