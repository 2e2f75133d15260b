package session

import "time"

// 事件类型。
const (
	EventState    = "state"
	EventMessages = "messages"
	EventNotes    = "notes"
	EventQuiz     = "quiz"
	EventDocument = "document"
	EventError    = "error"
	EventClosed   = "closed"
)

// Event 是会话状态变化的通知，界面据此重新渲染。
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	State     State       `json:"state"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}

// EventSink 接收会话事件，实现必须是非阻塞的。
type EventSink interface {
	Publish(ev Event)
}

type noopSink struct{}

func (noopSink) Publish(Event) {}
