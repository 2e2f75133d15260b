package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"stututor-go/internal/bridge"
	"stututor-go/internal/repository"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/log"
)

// Manager 按会话 ID 保存存活的协调器。空闲超过 IdleTTL 的会话被淘汰，
// 淘汰时取消其进行中的调用。
type Manager struct {
	sessions *cache.Cache
	ttl      time.Duration
	store    repository.ConversationStore
	bridge   bridge.Bridge
	fetcher  DocumentFetcher
	opts     Options
	events   EventSink
}

// NewManager 创建一个新的会话管理器。过期清理由 Run 驱动。
func NewManager(store repository.ConversationStore, br bridge.Bridge, fetcher DocumentFetcher, opts Options, idleTTL time.Duration, events EventSink) *Manager {
	if idleTTL <= 0 {
		idleTTL = cache.NoExpiration
	}
	m := &Manager{
		sessions: cache.New(idleTTL, 0),
		ttl:      idleTTL,
		store:    store,
		bridge:   br,
		fetcher:  fetcher,
		opts:     opts,
		events:   events,
	}
	m.sessions.OnEvicted(func(id string, v interface{}) {
		if c, ok := v.(*Coordinator); ok {
			c.Close()
			log.Infof("会话 %s 已关闭", id)
		}
	})
	return m
}

// Open 创建一个新会话。
func (m *Manager) Open() *Coordinator {
	c := NewCoordinator(uuid.NewString(), m.store, m.bridge, m.fetcher, m.opts, m.events)
	m.sessions.Set(c.ID(), c, cache.DefaultExpiration)
	return c
}

// Get 查找会话并刷新其空闲时间。
func (m *Manager) Get(id string) (*Coordinator, error) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, apperr.NotFound("session %s not found", id)
	}
	c := v.(*Coordinator)
	m.sessions.Set(id, c, cache.DefaultExpiration)
	return c, nil
}

// Close 关闭并移除会话。
func (m *Manager) Close(id string) error {
	if _, ok := m.sessions.Get(id); !ok {
		return apperr.NotFound("session %s not found", id)
	}
	m.sessions.Delete(id)
	return nil
}

// Len 返回存活会话数。
func (m *Manager) Len() int {
	return m.sessions.ItemCount()
}

// EvictExpired 淘汰所有空闲超时的会话。
func (m *Manager) EvictExpired() {
	m.sessions.DeleteExpired()
}

// Run 周期性淘汰过期会话，ctx 结束时关闭全部会话。
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			items := m.sessions.Items()
			m.sessions.Flush()
			for _, item := range items {
				item.Object.(*Coordinator).Close()
			}
			return nil
		case <-ticker.C:
			m.EvictExpired()
		}
	}
}
