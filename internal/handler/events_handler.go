package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"stututor-go/internal/session"
	"stututor-go/pkg/log"
	"stututor-go/pkg/token"
)

const (
	// subscriberBuffer 是每个订阅者的事件缓冲，写满后丢弃新事件。
	subscriberBuffer = 32
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// EventHub 把会话事件分发给订阅了该会话的 WebSocket 连接。
// Publish 从不阻塞，可以在协调器持锁时调用。
type EventHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan session.Event]struct{}
}

// NewEventHub 创建一个新的 EventHub。
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[chan session.Event]struct{})}
}

// Publish 实现 session.EventSink。
func (h *EventHub) Publish(ev session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			log.Warnf("会话 %s 的订阅者处理过慢，丢弃事件 %s", ev.SessionID, ev.Type)
		}
	}
}

// Subscribe 订阅一个会话的事件，返回的函数用于取消订阅。
func (h *EventHub) Subscribe(sessionID string) (<-chan session.Event, func()) {
	ch := make(chan session.Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan session.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers 返回某个会话当前的订阅者数量。
func (h *EventHub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// EventsHandler 通过 WebSocket 推送会话事件，界面据此重新渲染。
type EventsHandler struct {
	hub        *EventHub
	manager    *session.Manager
	jwtManager *token.JWTManager
}

// NewEventsHandler 创建一个新的 EventsHandler。
func NewEventsHandler(hub *EventHub, manager *session.Manager, jwtManager *token.JWTManager) *EventsHandler {
	return &EventsHandler{hub: hub, manager: manager, jwtManager: jwtManager}
}

// Handle 处理一个传入的 WebSocket 连接。连接建立后先发送一次当前状态。
func (h *EventsHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	coord, err := h.manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, "SessionEvents", err)
		return
	}

	events, unsubscribe := h.hub.Subscribe(coord.ID())
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，用户: %s, 会话: %s", claims.Username, coord.ID())

	// 客户端只读；读循环用于感知连接关闭。
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := coord.Snapshot()
	if err := writeEvent(conn, session.Event{Type: session.EventState, SessionID: snap.SessionID, State: snap.State, Payload: snap, At: time.Now()}); err != nil {
		log.Warnf("推送会话状态失败: %v", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev := <-events:
			if err := writeEvent(conn, ev); err != nil {
				log.Warnf("推送会话事件失败: %v", err)
				return
			}
			if ev.Type == session.EventClosed {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), time.Now().Add(writeWait))
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev session.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
