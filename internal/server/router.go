package server

import (
	"net/http"
	"time"

	"github.com/Sterdam/murmur-sub001/internal/auth"
	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/metrics"
	"github.com/Sterdam/murmur-sub001/internal/mw"
	"github.com/Sterdam/murmur-sub001/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, h *Handler, deps ws.Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, h.users))

	authed.GET("/me", h.Me)
	authed.PATCH("/me", h.UpdateMe)
	authed.GET("/users/:username", h.SearchUser)

	authed.POST("/contacts/requests", h.SendContactRequest)
	authed.GET("/contacts/requests", h.ListContactRequests)
	authed.POST("/contacts/requests/:id/accept", h.RespondContactRequest(true))
	authed.POST("/contacts/requests/:id/reject", h.RespondContactRequest(false))
	authed.GET("/contacts", h.ListContacts)

	authed.POST("/groups", h.CreateGroup)
	authed.GET("/groups", h.MyGroups)
	authed.GET("/groups/:id", h.GetGroup)
	authed.PATCH("/groups/:id", h.RenameGroup)
	authed.POST("/groups/:id/members", h.AddGroupMembers)
	authed.DELETE("/groups/:id/members/:userID", h.RemoveGroupMember)
	authed.GET("/groups/:id/messages", h.GroupHistory)
	authed.POST("/groups/:id/messages", h.SendGroupMessage)

	authed.GET("/conversations/:peerID/messages", h.DirectHistory)
	authed.POST("/messages", h.SendDirectMessage)

	r.GET("/ws", ws.Serve(deps))

	return r
}
