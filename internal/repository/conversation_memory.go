package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"stututor-go/internal/model"
)

type memoryConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*model.Conversation
	now   func() time.Time
}

// NewMemoryConversationStore 创建进程内的对话存储，用于测试和单机部署。
func NewMemoryConversationStore() ConversationStore {
	return &memoryConversationStore{convs: make(map[string]*model.Conversation), now: time.Now}
}

func (s *memoryConversationStore) CreateConversation(_ context.Context, title string) (*model.Conversation, error) {
	conv := newConversation(title, s.now())

	s.mu.Lock()
	s.convs[conv.ID] = conv
	s.mu.Unlock()

	return cloneMeta(conv), nil
}

func (s *memoryConversationStore) AppendMessage(_ context.Context, conversationID string, messages ...model.Message) (*model.Conversation, error) {
	if err := validateAppend(messages); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, conversationNotFound(conversationID)
	}
	added := applyAppend(conv, len(conv.Messages), messages, s.now())
	conv.Messages = append(conv.Messages, added...)
	return cloneMeta(conv), nil
}

func (s *memoryConversationStore) History(_ context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, conversationNotFound(conversationID)
	}
	return trailing(conv.Messages, limit), nil
}

func (s *memoryConversationStore) Get(_ context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, conversationNotFound(conversationID)
	}
	out := cloneMeta(conv)
	out.Messages = trailing(conv.Messages, 0)
	return out, nil
}

func (s *memoryConversationStore) List(_ context.Context) ([]model.Conversation, error) {
	s.mu.RLock()
	out := make([]model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, *cloneMeta(c))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// cloneMeta 复制对话元数据，不含消息。
func cloneMeta(c *model.Conversation) *model.Conversation {
	out := *c
	out.Messages = nil
	if c.PDFMetadata != nil {
		pdf := *c.PDFMetadata
		out.PDFMetadata = &pdf
	}
	return &out
}
