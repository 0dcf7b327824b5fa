package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/Sterdam/murmur-sub001/internal/delivery"
)

// Hub 管理按频道名组织的子 Hub，懒创建、并发安全。
// 频道名就是会话 id：私有频道 user:{id}，群频道 group:{id}。
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewHub() *Hub { return &Hub{channels: make(map[string]*Channel)} }

// GetChannel 若频道未初始化则懒加载一个 Channel。
func (h *Hub) GetChannel(name string) *Channel {
	h.mu.RLock()
	ch := h.channels[name]
	h.mu.RUnlock()
	if ch != nil {
		return ch
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ch = h.channels[name]
	if ch != nil {
		return ch
	}
	ch = NewChannel(name)
	h.channels[name] = ch
	go ch.run()
	return ch
}

// Broadcast 向频道的全部订阅者广播，频道不存在时静默丢弃。
func (h *Hub) Broadcast(name string, payload []byte) {
	h.mu.RLock()
	ch := h.channels[name]
	h.mu.RUnlock()
	if ch == nil {
		return
	}
	ch.broadcast <- payload
}

// Online 返回频道当前订阅数，供 REST 接口复用。
func (h *Hub) Online(name string) int {
	h.mu.RLock()
	ch := h.channels[name]
	h.mu.RUnlock()
	if ch == nil {
		return 0
	}
	return ch.Online()
}

// Channel 是单个频道的广播循环，订阅关系只在 run goroutine 里变更。
type Channel struct {
	name      string
	sessions  map[*Session]bool
	subscribe chan *Session
	unsub     chan *Session
	broadcast chan []byte
	online    int32
}

func NewChannel(name string) *Channel {
	return &Channel{
		name:      name,
		sessions:  make(map[*Session]bool),
		subscribe: make(chan *Session),
		unsub:     make(chan *Session),
		broadcast: make(chan []byte, 256),
	}
}

func (ch *Channel) run() {
	for {
		select {
		case s := <-ch.subscribe:
			ch.sessions[s] = true
			atomic.StoreInt32(&ch.online, int32(len(ch.sessions)))
			ch.fanout(ch.memberEvent(delivery.EventJoinGroup, s))
		case s := <-ch.unsub:
			if _, ok := ch.sessions[s]; ok {
				delete(ch.sessions, s)
				atomic.StoreInt32(&ch.online, int32(len(ch.sessions)))
				ch.fanout(ch.memberEvent(delivery.EventLeaveGroup, s))
			}
		case payload := <-ch.broadcast:
			ch.fanout(payload)
		}
	}
}

// fanout 给每个订阅者投递；缓冲已满的连接视为死连接，直接摘除。
func (ch *Channel) fanout(payload []byte) {
	if payload == nil {
		return
	}
	for s := range ch.sessions {
		if !s.Send(payload) {
			delete(ch.sessions, s)
			atomic.StoreInt32(&ch.online, int32(len(ch.sessions)))
		}
	}
}

func (ch *Channel) memberEvent(eventType string, s *Session) []byte {
	evt := map[string]interface{}{
		"type":     eventType,
		"channel":  ch.name,
		"user_id":  s.UserID(),
		"username": s.Username(),
		"online":   int(atomic.LoadInt32(&ch.online)),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return nil
	}
	return b
}

// Online 返回频道在线订阅数。
func (ch *Channel) Online() int { return int(atomic.LoadInt32(&ch.online)) }
