package store

import "strings"

// 键布局集中在这里，避免各 service 各拼各的前缀。
const (
	prefixUser        = "user:"
	prefixUsername    = "username:"
	prefixMessage     = "message:"
	prefixHistory     = "history:"
	prefixContacts    = "contacts:"
	prefixRequest     = "contactRequest:"
	prefixRequestsOut = "contactRequestsOut:"
	prefixRequestsIn  = "contactRequestsIn:"
	prefixGroup       = "group:"
	prefixMembers     = "groupMembers:"
	prefixRefresh     = "refreshToken:"
)

func UserKey(id string) string { return prefixUser + id }

// UsernameKey 是 username -> id 的二级索引键，统一小写保证大小写不敏感。
func UsernameKey(username string) string { return prefixUsername + strings.ToLower(username) }

func MessageKey(id string) string { return prefixMessage + id }

func HistoryKey(conversationID string) string { return prefixHistory + conversationID }

func ContactsKey(userID string) string { return prefixContacts + userID }

func RequestKey(id string) string { return prefixRequest + id }

func RequestsOutKey(userID string) string { return prefixRequestsOut + userID }

func RequestsInKey(userID string) string { return prefixRequestsIn + userID }

func GroupKey(id string) string { return prefixGroup + id }

func GroupMembersKey(id string) string { return prefixMembers + id }

func RefreshTokenKey(token string) string { return prefixRefresh + token }

// GroupMembersPrefix 供 UserGroups 扫描全部成员集合使用。
func GroupMembersPrefix() string { return prefixMembers }

// GroupIDFromMembersKey 从成员集合键还原群 ID，键形不符时返回空串。
func GroupIDFromMembersKey(key string) string {
	if !strings.HasPrefix(key, prefixMembers) {
		return ""
	}
	return strings.TrimPrefix(key, prefixMembers)
}
