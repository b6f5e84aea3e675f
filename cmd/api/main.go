package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kumahost/portal/wordpress-service/internal/client"
	"github.com/kumahost/portal/wordpress-service/internal/config"
	"github.com/kumahost/portal/wordpress-service/internal/db"
	"github.com/kumahost/portal/wordpress-service/internal/dbadmin"
	httpserver "github.com/kumahost/portal/wordpress-service/internal/http"
	"github.com/kumahost/portal/wordpress-service/internal/installer"
	"github.com/kumahost/portal/wordpress-service/internal/logger"
	"github.com/kumahost/portal/wordpress-service/internal/nginx"
	"github.com/kumahost/portal/wordpress-service/internal/repository"
	"github.com/kumahost/portal/wordpress-service/internal/runner"
	"github.com/kumahost/portal/wordpress-service/internal/service"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.Init(cfg.Log.Level, cfg.Log.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	if err := cfg.Validate(); err != nil {
		zlog.Fatal("invalid configuration", zap.Error(err))
	}

	zlog.Info("starting wordpress-service",
		zap.String("port", cfg.Server.Port),
		zap.String("registry", cfg.Database.Host+"/"+cfg.Database.DBName))

	pool, err := db.NewPool(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to registry database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool, cfg.Database.Schema); err != nil {
		zlog.Fatal("failed to ensure registry schema", zap.Error(err))
	}

	// Repositories
	siteRepo := repository.NewSiteRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// External collaborators
	blogRunner := runner.ExecRunner{Timeout: cfg.Blog.CommandTimeout}
	nginxRunner := runner.ExecRunner{Timeout: cfg.Nginx.CommandTimeout}

	dbAdmin := dbadmin.New(blogRunner, map[string]dbadmin.Target{
		dbadmin.TargetBlog: {
			Container: cfg.Blog.DBContainer,
			Binary:    cfg.Blog.DBBinary,
			User:      cfg.Blog.DBRootUser,
			Password:  cfg.Blog.DBRootPass,
		},
	}, zlog)

	wpInstaller := installer.New(blogRunner, installer.Options{
		Container:      cfg.Blog.WPContainer,
		DocRoot:        cfg.Blog.WPDocRoot,
		DBHost:         cfg.Blog.DBHost,
		DBUser:         cfg.Blog.WPDBUser,
		CommandTimeout: cfg.Blog.CommandTimeout,
		InstallTimeout: cfg.Blog.InstallTimeout,
	}, zlog)

	proxy := nginx.New(nginxRunner, nginx.Options{
		ConfDir:        cfg.Nginx.ConfDir,
		Container:      cfg.Nginx.Container,
		CommandTimeout: cfg.Nginx.CommandTimeout,
	}, zlog)

	routing := client.NewCloudflareClient(
		cfg.Cloudflare.BaseURL,
		cfg.Cloudflare.AccountID,
		cfg.Cloudflare.TunnelID,
		cfg.Cloudflare.APIToken,
		zlog,
	)

	// Services
	siteService := service.NewSiteService(
		cfg,
		zlog,
		service.NewRegistry(siteRepo),
		auditRepo,
		dbAdmin,
		wpInstaller,
		proxy,
		routing,
	)

	handler := httpserver.NewHandler(siteService, auditRepo, dbAdmin)
	server := httpserver.NewServer(cfg, handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: server.Engine(),
	}

	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Warn("graceful shutdown failed", zap.Error(err))
	}

	zlog.Info("server exited")
}
