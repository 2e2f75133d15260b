package service

import (
	"context"
	"strings"

	"stututor-go/internal/model"
	"stututor-go/internal/repository"
	"stututor-go/pkg/apperr"
)

// ConversationService 定义了对话业务逻辑的接口。消息只能经由会话的对话轮次追加。
type ConversationService interface {
	Create(ctx context.Context, title string) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	// Messages 返回最近 limit 条消息，limit <= 0 时使用默认窗口。
	Messages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

type conversationService struct {
	store        repository.ConversationStore
	defaultLimit int
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(store repository.ConversationStore, defaultLimit int) ConversationService {
	return &conversationService{store: store, defaultLimit: defaultLimit}
}

func (s *conversationService) Create(ctx context.Context, title string) (*model.Conversation, error) {
	return s.store.CreateConversation(ctx, strings.TrimSpace(title))
}

func (s *conversationService) List(ctx context.Context) ([]model.Conversation, error) {
	return s.store.List(ctx)
}

func (s *conversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, apperr.Validation("conversation id is required")
	}
	return s.store.Get(ctx, conversationID)
}

func (s *conversationService) Messages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	return s.store.History(ctx, conversationID, limit)
}
