package main

import (
	"context"
	"fmt"
	"time"

	"costsense-go/internal/config"
	"costsense-go/internal/model"
	"costsense-go/internal/repository"
	"costsense-go/internal/service"
	"costsense-go/pkg/database"
	"costsense-go/pkg/icon"
	"costsense-go/pkg/kafka"
	"costsense-go/pkg/llm"
	"costsense-go/pkg/log"
	"costsense-go/pkg/metrics"
	"costsense-go/pkg/ratelimit"
	"costsense-go/pkg/token"

	"github.com/spf13/cobra"
)

// app 汇集由配置构建出的全部有状态组件。
type app struct {
	cfg           config.Config
	vocab         *icon.Vocabulary
	metrics       *metrics.Metrics
	generation    service.GenerationService
	chat          service.ChatService
	conversations service.ConversationService
	sessions      *service.SessionResolver

	closers []func()
}

// loadConfig 读取 --config 指定的配置并初始化日志。
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if err := config.Init(path); err != nil {
		return config.Config{}, err
	}
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")
	return cfg, nil
}

// buildProviders 注册 gemini 与 openai；anthropic 仅在配置了密钥时注册。
func buildProviders(ctx context.Context, cfg config.ProvidersConfig, resolver *icon.Resolver, historyTurns int) []llm.Provider {
	opts := llm.Options{
		Resolver:     resolver,
		Timeout:      cfg.Timeout,
		HistoryTurns: historyTurns,
	}
	providers := []llm.Provider{
		llm.NewGeminiProvider(ctx, cfg.Gemini, opts),
		llm.NewOpenAIProvider(cfg.OpenAI, opts),
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, llm.NewAnthropicProvider(cfg.Anthropic, opts))
	}
	for _, p := range providers {
		if !p.IsConfigured() {
			log.Warnw("Provider is not configured", "provider", p.Name())
		}
	}
	return providers
}

// buildLimiter 根据 rate_limit.backend 选择内存或 Redis 限流器。
func (a *app) buildLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	rl := a.cfg.RateLimit
	switch rl.Backend {
	case "", "memory":
		limiter := ratelimit.NewMemoryLimiter(rl.Limit, rl.Window, ratelimit.WithIdleTimeout(rl.IdleTimeout))
		sweeper := ratelimit.NewSweeper(limiter, rl.SweepInterval)
		sweeper.Start(ctx)
		a.closers = append(a.closers, sweeper.Stop)
		return limiter, nil
	case "redis":
		redisCfg := a.cfg.Database.Redis
		if err := database.InitRedis(ctx, redisCfg.Addr, redisCfg.Password, redisCfg.DB); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = database.RDB.Close() })
		return ratelimit.NewRedisLimiter(database.RDB, rl.Limit, rl.Window), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", rl.Backend)
	}
}

// buildRecorders 构建可选的生成日志接收端：MySQL 审计表与 Kafka 事件流。
func (a *app) buildRecorders() []service.GenerationRecorder {
	var recorders []service.GenerationRecorder
	if dsn := a.cfg.Database.MySQL.DSN; dsn != "" {
		if err := database.InitMySQL(dsn, &model.GenerationLog{}); err != nil {
			log.Warnw("Generation audit log disabled", "error", err)
		} else {
			recorders = append(recorders, repository.NewGenerationLogRepository(database.DB))
		}
	}
	if a.cfg.Kafka.Brokers != "" {
		publisher := kafka.NewEventPublisher(a.cfg.Kafka)
		a.closers = append(a.closers, func() {
			if err := publisher.Close(); err != nil {
				log.Warnw("Failed to close kafka publisher", "error", err)
			}
		})
		recorders = append(recorders, publisher)
	}
	return recorders
}

// newApp 按依赖顺序构建所有组件。
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	// 1. 图标词表
	vocab, err := icon.LoadVocabulary(cfg.Icons.VocabularyPath)
	if err != nil {
		return nil, err
	}
	a.vocab = vocab
	resolver := icon.NewResolver(vocab)

	// 2. 供应商与指标
	a.metrics = metrics.New()
	providers := buildProviders(ctx, cfg.Providers, resolver, cfg.Chat.PromptHistoryTurns)
	a.generation = service.NewGenerationService(providers, cfg.Providers.Default, a.metrics, a.buildRecorders()...)
	if !a.generation.HasProvider(cfg.Providers.Default) {
		a.Close()
		return nil, fmt.Errorf("default provider %q is not registered", cfg.Providers.Default)
	}

	// 3. 限流与会话
	limiter, err := a.buildLimiter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	conversationRepo := repository.NewConversationRepository(cfg.Chat.HistoryLimit, cfg.Chat.MaxConversations, cfg.Chat.EvictBatch)
	a.metrics.RegisterConversationGauge(func() float64 {
		n, _ := conversationRepo.Count(context.Background())
		return float64(n)
	})
	a.sessions = service.NewSessionResolver(token.NewSessionTokenManager(cfg.Session.TokenSecret, cfg.Session.TokenTTLHours))

	// 4. 业务服务
	a.chat = service.NewChatService(a.generation, limiter, conversationRepo, a.sessions, a.metrics, cfg.Chat.MaxMessageLength)
	a.conversations = service.NewConversationService(conversationRepo, a.sessions)
	return a, nil
}

// Close 按创建的逆序释放资源。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

const shutdownTimeout = 5 * time.Second
