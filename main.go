package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clore-monitor-bot/bot"
	"clore-monitor-bot/clore"
	"clore-monitor-bot/config"
	"clore-monitor-bot/model"
	"clore-monitor-bot/monitor"
	"clore-monitor-bot/whattomine"

	"github.com/glebarez/sqlite"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}

	// Auto migrate
	db.AutoMigrate(&model.Alert{})

	listings := clore.NewClient(cfg.Clore.URL, cfg.Clore.Token, logger)
	coins := whattomine.NewCache(cfg.WhatToMine.URL, cfg.ReferenceTTL(), logger)

	engine := monitor.NewEngine(monitor.Config{
		PollInterval: cfg.CheckInterval(),
		PageSize:     cfg.Monitor.PageSize,
	}, listings, coins, nil, db, logger)

	b, err := bot.NewBot(cfg.Telegram.Token, db, engine, logger)
	if err != nil {
		log.Fatal(err)
	}
	engine.SetNotifier(b)

	// Scheduler: keep the coin snapshot warm so ticks rarely pay the
	// upstream fetch latency.
	c := cron.New()
	c.AddFunc("@every 5m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := coins.Refresh(ctx); err != nil {
			logger.Warn("scheduled coin refresh failed", "err", err)
		}
	})
	c.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		c.Stop()
		engine.StopAll()
		b.Stop()
	}()

	logger.Info("bot started")
	b.Start()
}
