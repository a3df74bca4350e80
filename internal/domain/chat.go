package domain

// ChatMessage is the role/content pair sent to chat completion endpoints.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
