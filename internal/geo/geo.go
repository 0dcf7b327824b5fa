package geo

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/rs/zerolog/log"
)

// Resolver 把一次请求解析成两位国家码。具体数据源（边缘头、
// geo-ip 库）由实现决定，core 只消费结果。
type Resolver interface {
	Country(r *http.Request) (string, error)
}

// HeaderResolver 读边缘代理注入的国家码头（Cloudflare 的
// CF-IPCountry 或自建网关的 X-Country-Code）。
type HeaderResolver struct{}

var errNoCountryHeader = errors.New("geo: no country header")

func (HeaderResolver) Country(r *http.Request) (string, error) {
	for _, h := range []string{"CF-IPCountry", "X-Country-Code"} {
		if v := strings.TrimSpace(r.Header.Get(h)); len(v) == 2 {
			return strings.ToUpper(v), nil
		}
	}
	return "", errNoCountryHeader
}

// Gate 是地域准入判定。用户未配置 AllowedRegions 时放行；
// 解析失败时降级为放行，除非配置了 strict。
type Gate struct {
	resolver Resolver
	strict   bool
}

func NewGate(resolver Resolver, strict bool) *Gate {
	return &Gate{resolver: resolver, strict: strict}
}

// Admit 判定该用户是否允许从这次请求的来源地接入。
func (g *Gate) Admit(user *models.User, r *http.Request) bool {
	if user == nil || len(user.AllowedRegions) == 0 {
		return true
	}
	country, err := g.resolver.Country(r)
	if err != nil {
		if g.strict {
			return false
		}
		// 尽力而为：解析不出来不挡人。
		log.Debug().Err(err).Str("user_id", user.ID).Msg("geo resolve failed, allowing")
		return true
	}
	for _, allowed := range user.AllowedRegions {
		if strings.EqualFold(allowed, country) {
			return true
		}
	}
	return false
}
