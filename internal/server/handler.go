package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/auth"
	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/delivery"
	"github.com/Sterdam/murmur-sub001/internal/geo"
	"github.com/Sterdam/murmur-sub001/internal/models"
	"github.com/Sterdam/murmur-sub001/internal/service"
	"github.com/Sterdam/murmur-sub001/internal/store"
	"github.com/Sterdam/murmur-sub001/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	cfg      config.Config
	store    store.Store
	users    *service.UserService
	contacts *service.ContactService
	groups   *service.GroupService
	messages *service.MessageService
	router   *delivery.Router
	gate     *geo.Gate
}

func NewHandler(cfg config.Config, st store.Store, users *service.UserService, contacts *service.ContactService,
	groups *service.GroupService, messages *service.MessageService, router *delivery.Router, gate *geo.Gate) *Handler {
	return &Handler{cfg: cfg, store: st, users: users, contacts: contacts, groups: groups,
		messages: messages, router: router, gate: gate}
}

// respondError 按错误码映射响应。NotFound 一律回笼统的 not found，
// 避免用户名/ID 枚举；存储和未知错误不向外暴露内部细节。
func respondError(c *gin.Context, err error, logMsg string) {
	code := errors.CodeOf(err)
	status := errors.HTTPStatus(err)
	switch code {
	case errors.CodeNotFound:
		c.JSON(status, gin.H{"error": "not found"})
	case errors.CodeStorage, errors.CodeInternal, errors.CodeUnknown:
		log.Error().Err(err).Str("path", c.FullPath()).Msg(logMsg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

func userDTO(u *models.User) gin.H {
	return gin.H{
		"id":              u.ID,
		"username":        u.Username,
		"public_key":      u.PublicKey,
		"display_name":    u.DisplayName,
		"bio":             u.Bio,
		"allowed_regions": u.AllowedRegions,
		"settings":        u.Settings,
		"created_at":      u.CreatedAt,
	}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		PublicKey string `json:"public_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.PublicKey)
	if err != nil {
		respondError(c, err, "register")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username})
}

// Login 校验凭据、执行地域准入、签发 token 对。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err, "login")
		return
	}
	if !h.gate.Admit(user, c.Request) {
		c.JSON(http.StatusForbidden, gin.H{"error": "access not allowed from this region"})
		return
	}
	at, err := auth.GenerateAccessToken(user.ID, h.cfg.JWTSecret, h.cfg.AccessTokenTTLMinutes)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("login generate access token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	rt, err := auth.GenerateRefreshToken()
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("login generate refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	ttl := time.Duration(h.cfg.RefreshTokenTTLDays) * 24 * time.Hour
	if err := auth.SaveRefreshToken(c.Request.Context(), h.store, user.ID, rt, ttl); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("login save refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  at,
		"refresh_token": rt,
		"user":          gin.H{"id": user.ID, "username": user.Username},
	})
}

// RefreshToken 验证旧 refresh token 并签发新 token 对（旋转刷新）。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ctx := c.Request.Context()
	userID, err := auth.ValidateRefreshToken(ctx, h.store, req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err := auth.RevokeRefreshToken(ctx, h.store, req.RefreshToken); err != nil {
		log.Error().Err(err).Msg("revoke refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure"})
		return
	}
	at, err := auth.GenerateAccessToken(userID, h.cfg.JWTSecret, h.cfg.AccessTokenTTLMinutes)
	if err != nil {
		log.Error().Err(err).Msg("refresh generate access token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure"})
		return
	}
	newRT, err := auth.GenerateRefreshToken()
	if err != nil {
		log.Error().Err(err).Msg("refresh generate refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure"})
		return
	}
	ttl := time.Duration(h.cfg.RefreshTokenTTLDays) * 24 * time.Hour
	if err := auth.SaveRefreshToken(ctx, h.store, userID, newRT, ttl); err != nil {
		log.Error().Err(err).Msg("refresh save refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": at, "refresh_token": newRT})
}

// Me 返回当前用户资料。
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": userDTO(auth.GetUser(c))})
}

// UpdateMe 按白名单更新当前用户资料。
func (h *Handler) UpdateMe(c *gin.Context) {
	var req struct {
		PublicKey      *string                `json:"public_key"`
		DisplayName    *string                `json:"display_name"`
		Bio            *string                `json:"bio"`
		AllowedRegions []string               `json:"allowed_regions"`
		Settings       map[string]interface{} `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, err := h.users.Update(c.Request.Context(), auth.GetUserID(c), service.UserPatch{
		PublicKey:      req.PublicKey,
		DisplayName:    req.DisplayName,
		Bio:            req.Bio,
		AllowedRegions: req.AllowedRegions,
		Settings:       req.Settings,
	})
	if err != nil {
		respondError(c, err, "update profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userDTO(user)})
}

// SearchUser 按精确用户名查找，只回公开字段。
func (h *Handler) SearchUser(c *gin.Context) {
	user, err := h.users.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err, "search user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"public_key":   user.PublicKey,
	}})
}

// SendContactRequest 发起好友请求。
func (h *Handler) SendContactRequest(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	out, err := h.contacts.SendRequest(c.Request.Context(), auth.GetUserID(c), req.Username)
	if err != nil {
		respondError(c, err, "send contact request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": out})
}

// ListContactRequests 列出 pending 请求，direction=incoming|outgoing。
func (h *Handler) ListContactRequests(c *gin.Context) {
	userID := auth.GetUserID(c)
	var (
		reqs []models.ContactRequest
		err  error
	)
	switch c.DefaultQuery("direction", "incoming") {
	case "incoming":
		reqs, err = h.contacts.ListIncoming(c.Request.Context(), userID)
	case "outgoing":
		reqs, err = h.contacts.ListOutgoing(c.Request.Context(), userID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid direction"})
		return
	}
	if err != nil {
		respondError(c, err, "list contact requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// RespondContactRequest 接受或拒绝一条请求，accept 由路由决定。
func (h *Handler) RespondContactRequest(accept bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := h.contacts.Respond(c.Request.Context(), c.Param("id"), auth.GetUserID(c), accept)
		if err != nil {
			respondError(c, err, "respond contact request")
			return
		}
		c.JSON(http.StatusOK, gin.H{"request": req})
	}
}

// ListContacts 返回联系人 id 列表。
func (h *Handler) ListContacts(c *gin.Context) {
	ids, err := h.contacts.Contacts(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list contacts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": ids})
}

// CreateGroup 创建群组，创建者无条件入群。
func (h *Handler) CreateGroup(c *gin.Context) {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	group, err := h.groups.Create(c.Request.Context(), auth.GetUserID(c), req.Name, req.Members)
	if err != nil {
		respondError(c, err, "create group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// GetGroup 只有成员能看群详情。
func (h *Handler) GetGroup(c *gin.Context) {
	ctx := c.Request.Context()
	groupID := c.Param("id")
	isMember, err := h.groups.IsMember(ctx, groupID, auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "get group")
		return
	}
	if !isMember {
		respondError(c, errors.ErrGroupNotFound, "get group")
		return
	}
	group, err := h.groups.Get(ctx, groupID)
	if err != nil {
		respondError(c, err, "get group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// RenameGroup 改名，service 层校验创建者权限。
func (h *Handler) RenameGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	group, err := h.groups.Rename(c.Request.Context(), c.Param("id"), auth.GetUserID(c), req.Name)
	if err != nil {
		respondError(c, err, "rename group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// AddGroupMembers 拉人进群。
func (h *Handler) AddGroupMembers(c *gin.Context) {
	var req struct {
		Members []string `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	group, err := h.groups.AddMembers(c.Request.Context(), c.Param("id"), auth.GetUserID(c), req.Members)
	if err != nil {
		respondError(c, err, "add group members")
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// RemoveGroupMember 踢人或退群，权限规则在 service 层。
func (h *Handler) RemoveGroupMember(c *gin.Context) {
	err := h.groups.RemoveMember(c.Request.Context(), c.Param("id"), auth.GetUserID(c), c.Param("userID"))
	if err != nil {
		respondError(c, err, "remove group member")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MyGroups 返回当前用户所在的全部群。
func (h *Handler) MyGroups(c *gin.Context) {
	groups, err := h.groups.UserGroups(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list groups")
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// DirectHistory 拉取与某个用户的单聊历史，最新在前。
// 会话 id 由请求者和对端重新推导，客户端无法指定别人的会话。
func (h *Handler) DirectHistory(c *gin.Context) {
	limit, offset := pagination(c)
	convID := models.DirectConversationID(auth.GetUserID(c), c.Param("peerID"))
	msgs, err := h.messages.History(c.Request.Context(), convID, limit, offset)
	if err != nil {
		respondError(c, err, "direct history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "conversation_id": convID})
}

// GroupHistory 拉取群聊历史，只有成员可见。
func (h *Handler) GroupHistory(c *gin.Context) {
	ctx := c.Request.Context()
	groupID := c.Param("id")
	isMember, err := h.groups.IsMember(ctx, groupID, auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "group history")
		return
	}
	if !isMember {
		respondError(c, errors.ErrGroupNotFound, "group history")
		return
	}
	limit, offset := pagination(c)
	msgs, err := h.messages.History(ctx, models.GroupConversationID(groupID), limit, offset)
	if err != nil {
		respondError(c, err, "group history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendDirectMessage 是 websocket 之外的兜底发送通道。
func (h *Handler) SendDirectMessage(c *gin.Context) {
	var req struct {
		To          string `json:"to"`
		Ciphertext  string `json:"ciphertext"`
		KeyEnvelope string `json:"key_envelope"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, delivered, err := h.router.SendDirect(c.Request.Context(), auth.GetUserID(c), req.To, req.Ciphertext, req.KeyEnvelope)
	if err != nil {
		respondError(c, err, "send direct message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": msg.ID, "delivered": delivered, "conversation_id": msg.ConversationID})
}

// SendGroupMessage 是群消息的兜底发送通道。
func (h *Handler) SendGroupMessage(c *gin.Context) {
	var req struct {
		Ciphertext   string            `json:"ciphertext"`
		KeyEnvelopes map[string]string `json:"key_envelopes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.router.SendGroup(c.Request.Context(), auth.GetUserID(c), c.Param("id"), req.Ciphertext, req.KeyEnvelopes)
	if err != nil {
		respondError(c, err, "send group message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": msg.ID, "conversation_id": msg.ConversationID})
}
