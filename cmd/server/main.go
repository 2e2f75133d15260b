// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
	"stututor-go/internal/bridge"
	"stututor-go/internal/config"
	"stututor-go/internal/handler"
	"stututor-go/internal/middleware"
	"stututor-go/internal/pipeline"
	"stututor-go/internal/repository"
	"stututor-go/internal/service"
	"stututor-go/internal/session"
	"stututor-go/pkg/database"
	"stututor-go/pkg/kafka"
	"stututor-go/pkg/llm"
	"stututor-go/pkg/log"
	"stututor-go/pkg/storage"
	"stututor-go/pkg/token"
	"stututor-go/pkg/upstream"
)

// evictInterval 是检查空闲会话的周期。
const evictInterval = time.Minute

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库、Redis 和对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	objectStore, err := storage.NewMinioStore(cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		log.Fatal("MinIO 存储桶检查失败", err)
	}

	// 4. 初始化 Repository
	documentRepo := repository.NewDocumentRepository(database.DB)
	conversationStore := newConversationStore(cfg.Conversation, database.RDB)

	// 5. 初始化 AI 客户端与生成桥
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		log.Fatal("LLM 客户端初始化失败", err)
	}
	generator := bridge.New(llmClient, bridge.Models{Chat: cfg.LLM.Model, Notes: cfg.LLM.NotesModel, Quiz: cfg.LLM.QuizModel})

	// 6. 初始化 Kafka 生产者，未配置 broker 时跳过异步处理
	var publisher service.TaskPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
	} else {
		log.Warnf("未配置 Kafka broker，上传后不会提取 PDF 元数据")
	}

	// 7. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	uploadService := service.NewUploadService(objectStore, documentRepo, publisher, cfg.MinIO.MaxUploadBytes)
	documentService := service.NewDocumentService(documentRepo, objectStore)
	conversationService := service.NewConversationService(conversationStore, cfg.Conversation.HistoryLimit)

	hub := handler.NewEventHub()
	sessions := session.NewManager(conversationStore, generator, documentService, session.Options{
		CallTimeout:  cfg.Session.CallTimeout,
		HistoryLimit: cfg.Conversation.HistoryLimit,
	}, cfg.Session.IdleTTL, hub)

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	// multipart 表单超出部分写入临时文件
	r.MaxMultipartMemory = cfg.MinIO.MaxUploadBytes

	registerRoutes(r, routeDeps{
		jwtManager:    jwtManager,
		sessions:      handler.NewSessionHandler(sessions, uploadService, documentService),
		conversations: handler.NewConversationHandler(conversationService),
		documents:     handler.NewDocumentHandler(uploadService, documentService),
		events:        handler.NewEventsHandler(hub, sessions, jwtManager),
		proxy:         handler.NewProxyHandler(upstream.NewClient(cfg.Upstream)),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	// 9. 启动 HTTP 服务、会话淘汰和 Kafka 消费者，任一失败时整体退出
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx, evictInterval)
	})
	if producer != nil {
		processor := pipeline.NewProcessor(objectStore, documentRepo)
		g.Go(func() error {
			return kafka.StartConsumer(gctx, cfg.Kafka, processor, database.RDB)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("接收到停机信号，正在关闭服务...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
		}
		return nil
	})

	waitErr := g.Wait()
	if waitErr != nil {
		log.Errorf("服务异常退出: %v", waitErr)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if err := database.RDB.Close(); err != nil {
		log.Errorf("关闭 Redis 客户端失败: %v", err)
	}
	log.Info("服务已优雅关闭")
	if waitErr != nil {
		log.Sync()
		os.Exit(1)
	}
}

// newConversationStore 按配置选择对话存储，memory 仅用于本地调试。
func newConversationStore(cfg config.ConversationConfig, rdb *redis.Client) repository.ConversationStore {
	if cfg.Store == "memory" {
		log.Warnf("对话存储使用内存实现，重启后历史记录会丢失")
		return repository.NewMemoryConversationStore()
	}
	return repository.NewRedisConversationStore(rdb, cfg.TTL)
}
