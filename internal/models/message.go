package models

import "time"

type MessageType string

const (
	MessageUserInput       MessageType = "user_input"
	MessageTaskAdded       MessageType = "task_added"
	MessageStartingTask    MessageType = "starting_task"
	MessageAnalyzingTask   MessageType = "analyzing_task"
	MessageExecutingTask   MessageType = "executing_task"
	MessageGeneratedReport MessageType = "generated_response"
)

// Streamed reports whether messages of this type accumulate a detail body.
func (t MessageType) Streamed() bool {
	return t == MessageExecutingTask || t == MessageGeneratedReport
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the user-visible log.
type Message struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Type      MessageType `json:"type"`
	Role      Role        `json:"role"`
	Timestamp time.Time   `json:"timestamp"`
	ImageURL  string      `json:"image_url,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}
