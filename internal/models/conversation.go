package models

import "strings"

// groupConversationPrefix 同时用作群会话 id 的前缀和形状判定依据。
const groupConversationPrefix = "group:"

// DirectConversationID 由参与双方的 id 推导单聊会话 id：
// 两个 id 按字典序排序后用 ":" 拼接，保证无论谁发起得到同一个 id。
// 会话 id 永远在服务端重新计算，不信任客户端传来的值。
func DirectConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// GroupConversationID 推导群会话 id。
func GroupConversationID(groupID string) string {
	return groupConversationPrefix + groupID
}

// IsGroupConversation 判断一个会话 id 是否属于群聊。
func IsGroupConversation(conversationID string) bool {
	return strings.HasPrefix(conversationID, groupConversationPrefix)
}
