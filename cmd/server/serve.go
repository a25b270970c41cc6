package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"costsense-go/internal/handler"
	"costsense-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// 设置 Gin 模式并创建路由引擎
		gin.SetMode(cfg.Server.Mode)
		deps := handler.Dependencies{
			Chat:          a.chat,
			Conversations: a.conversations,
			Generation:    a.generation,
			Sessions:      a.sessions,
			Vocabulary:    a.vocab,
		}
		if cfg.Metrics.Enabled {
			deps.Metrics = a.metrics
			deps.MetricsPath = cfg.Metrics.Path
			deps.MetricsToken = cfg.Metrics.Token
		}
		r := handler.NewRouter(deps)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: r,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Infof("服务启动于 %s", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		case <-ctx.Done():
			log.Info("接收到停机信号，正在关闭服务...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP 服务器关闭失败: %v", err)
			_ = srv.Close()
		}
		log.Info("服务已优雅关闭")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
