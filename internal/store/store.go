package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 表示键不存在，调用方据此区分“没有数据”和存储故障。
var ErrNotFound = errors.New("store: not found")

// Store 抽象底层的 KV/集合/列表存储，所有键都支持过期。
// 单键写入是原子的；跨键的读-改-写序列不提供事务保证。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX 仅在键不存在时写入，返回是否写入成功。ttl 为 0 表示不过期。
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Keys 返回匹配前缀的全部键，只用于低频的枚举场景。
	Keys(ctx context.Context, prefix string) ([]string, error)
}
