// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"stututor-go/internal/model"
	"stututor-go/pkg/apperr"
)

// ConversationStore 定义了对话历史记录的操作接口。
// AppendMessage 是唯一的修改入口，消息只追加不修改。
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string) (*model.Conversation, error)
	// AppendMessage 原子地追加一批消息并刷新 UpdatedAt，返回不含消息的对话。
	AppendMessage(ctx context.Context, conversationID string, messages ...model.Message) (*model.Conversation, error)
	// History 返回最近 limit 条消息（最新的在最后），limit <= 0 表示全部。
	History(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	// List 按最近更新排序，不含消息。
	List(ctx context.Context) ([]model.Conversation, error)
}

func newConversation(title string, now time.Time) *model.Conversation {
	if title == "" {
		title = model.DefaultConversationTitle
	}
	return &model.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// applyAppend 在元数据上应用一次追加：刷新时间、补全消息字段、
// 用首条用户消息替换默认标题、记录最后引用的文档。
func applyAppend(conv *model.Conversation, existing int, messages []model.Message, now time.Time) []model.Message {
	out := make([]model.Message, len(messages))
	for i, m := range messages {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		out[i] = m

		if m.Role == model.RoleUser && existing == 0 && i == 0 && conv.Title == model.DefaultConversationTitle && m.Content != "" {
			conv.Title = model.TitleFromMessage(m.Content)
		}
		if m.FileAttachment != nil {
			conv.PDFMetadata = model.SnapshotFromAttachment(m.FileAttachment)
		}
	}
	conv.UpdatedAt = now
	return out
}

func validateAppend(messages []model.Message) error {
	if len(messages) == 0 {
		return apperr.Validation("no messages to append")
	}
	for _, m := range messages {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			return apperr.Validation("invalid message role %q", m.Role)
		}
	}
	return nil
}

func conversationNotFound(id string) error {
	return apperr.NotFound("conversation %s not found", id)
}

func trailing(messages []model.Message, limit int) []model.Message {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]model.Message, len(messages))
	copy(out, messages)
	return out
}
