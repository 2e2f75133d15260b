// Package model 包含了应用的数据模型定义。
package model

import (
	"time"
	"unicode/utf8"
)

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultConversationTitle 是新建对话的默认标题，首条用户消息会替换它。
const DefaultConversationTitle = "New Conversation"

const titleMaxRunes = 50

// FileAttachment 是附加在消息上的文件描述。
type FileAttachment struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Type       string `json:"type"` // 必须等于上传时声明的 MIME 类型
	URL        string `json:"url,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

// Message 是对话中的单条消息，追加之后不再修改。
type Message struct {
	ID             string          `json:"id"`
	Role           string          `json:"role"` // "user" 或 "assistant"
	Content        string          `json:"content"`
	Timestamp      time.Time       `json:"timestamp"`
	FileAttachment *FileAttachment `json:"fileAttachment,omitempty"`
}

// ConversationPDF 是对话最后一次引用的文档快照。
type ConversationPDF struct {
	DocumentID string `json:"documentId,omitempty"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	MIMEType   string `json:"mimeType"`
	StorageURL string `json:"storageUrl,omitempty"`
}

// Conversation 代表一次聊天，只能通过追加消息修改。
type Conversation struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Messages    []Message        `json:"messages,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	PDFMetadata *ConversationPDF `json:"pdfMetadata,omitempty"`
}

// SnapshotFromAttachment 把消息附件转换为对话上的文档快照。
func SnapshotFromAttachment(a *FileAttachment) *ConversationPDF {
	if a == nil {
		return nil
	}
	return &ConversationPDF{
		DocumentID: a.DocumentID,
		FileName:   a.Name,
		FileSize:   a.Size,
		MIMEType:   a.Type,
		StorageURL: a.URL,
	}
}

// TitleFromMessage 取首条用户消息的前 50 个字符作为对话标题。
func TitleFromMessage(content string) string {
	if utf8.RuneCountInString(content) <= titleMaxRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleMaxRunes]) + "..."
}
