package presence

import "sync"

// Handle 是一条可推送的活动连接。Send 不阻塞，缓冲已满返回 false。
type Handle interface {
	Send(payload []byte) bool
}

// Registry 维护进程内 identity -> 活动连接 的映射。
// 同一身份允许多个句柄（多端在线），推送会发给全部句柄。
// 只对本进程权威，不跨实例共享；原始 map 从不外泄，查询返回快照。
type Registry struct {
	mu      sync.RWMutex
	handles map[string][]Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string][]Handle)}
}

// Register 在会话认证成功后登记句柄。
func (r *Registry) Register(identity string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[identity] = append(r.handles[identity], h)
}

// Unregister 在会话结束时摘除句柄；最后一个句柄摘掉后条目整体删除。
// 句柄不存在时是 no-op，重复注销安全。
func (r *Registry) Unregister(identity string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := r.handles[identity]
	for i, cur := range hs {
		if cur == h {
			hs = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(r.handles, identity)
		return
	}
	r.handles[identity] = hs
}

func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles[identity]) > 0
}

// HandlesFor 返回句柄快照，调用方可安全遍历。
func (r *Registry) HandlesFor(identity string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.handles[identity]
	if len(hs) == 0 {
		return nil
	}
	out := make([]Handle, len(hs))
	copy(out, hs)
	return out
}

// Online 返回当前在线身份数，供指标和调试接口使用。
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
