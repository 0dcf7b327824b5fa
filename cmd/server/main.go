package main

import (
	"github.com/Sterdam/murmur-sub001/internal/config"
	"github.com/Sterdam/murmur-sub001/internal/delivery"
	"github.com/Sterdam/murmur-sub001/internal/geo"
	clog "github.com/Sterdam/murmur-sub001/internal/log"
	"github.com/Sterdam/murmur-sub001/internal/presence"
	"github.com/Sterdam/murmur-sub001/internal/server"
	"github.com/Sterdam/murmur-sub001/internal/service"
	"github.com/Sterdam/murmur-sub001/internal/store"
	"github.com/Sterdam/murmur-sub001/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接存储并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	var st store.Store
	if cfg.StoreBackend == "memory" {
		st = store.NewMemoryStore()
		log.Warn().Msg("using in-memory store, data will not survive restarts")
	} else {
		rs, err := store.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("store connect")
		}
		st = rs
	}

	users := service.NewUserService(st, cfg)
	contacts := service.NewContactService(st, users, cfg)
	groups := service.NewGroupService(st)
	messages := service.NewMessageService(st, cfg)

	registry := presence.NewRegistry()
	hub := ws.NewHub()
	router := delivery.NewRouter(messages, groups, registry, hub)
	gate := geo.NewGate(geo.HeaderResolver{}, cfg.GeoStrict)

	h := server.NewHandler(cfg, st, users, contacts, groups, messages, router, gate)
	deps := ws.Deps{
		Cfg:      cfg,
		Users:    users,
		Groups:   groups,
		Messages: messages,
		Router:   router,
		Registry: registry,
		Hub:      hub,
	}

	r := server.SetupRouter(cfg, h, deps)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
