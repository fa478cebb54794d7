// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nadlan-chat-go/internal/chatbot"
	"nadlan-chat-go/internal/config"
	"nadlan-chat-go/internal/handler"
	"nadlan-chat-go/internal/middleware"
	"nadlan-chat-go/internal/pipeline"
	"nadlan-chat-go/internal/repository"
	"nadlan-chat-go/internal/service"
	"nadlan-chat-go/pkg/database"
	"nadlan-chat-go/pkg/es"
	"nadlan-chat-go/pkg/kafka"
	"nadlan-chat-go/pkg/llm"
	"nadlan-chat-go/pkg/log"
	"nadlan-chat-go/pkg/scraper"
	"nadlan-chat-go/pkg/search"
	"nadlan-chat-go/pkg/storage"
	"nadlan-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储与外部客户端
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(
		database.RDB,
		time.Duration(cfg.Session.TTLDays)*24*time.Hour,
		cfg.Session.MaxMessages,
	)
	requirementsRepo := repository.NewRequirementsRepository(database.DB)
	propertyRepo := repository.NewPropertyRepository(database.DB)

	// 5. 初始化 Service 与工作流 (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	searchClient := search.NewClient(cfg.Search)
	extractor := scraper.NewClient(cfg.Scraper, storage.PutSnapshot)

	userService := service.NewUserService(userRepo, jwtManager)
	sessionService := service.NewSessionService(sessionRepo, time.Duration(cfg.Session.StaleAfterMinutes)*time.Minute)
	listingSearchService := service.NewListingSearchService(es.ESClient, cfg.Elasticsearch.IndexName)

	workflow := chatbot.NewWorkflow(
		chatbot.NewJWTVerifier(jwtManager),
		sessionService,
		sessionRepo,
		llmClient,
		requirementsRepo,
		searchClient,
		extractor,
		propertyRepo,
		kafka.ProduceIndexTask,
	)

	// 6. 启动后台 Kafka 消费者（房源索引管道）
	indexer := pipeline.NewIndexer(cfg.Elasticsearch)
	go kafka.StartConsumer(cfg.Kafka, indexer)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	chatHandler := handler.NewChatHandler(workflow)
	userHandler := handler.NewUserHandler(userService)
	searchHandler := handler.NewSearchHandler(listingSearchService, propertyRepo, requirementsRepo, storage.GetPresignedURL)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", userHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
			}
		}

		// 聊天轮次走软认证：凭证校验在工作流内部完成
		chat := apiV1.Group("/chat")
		{
			chat.POST("", chatHandler.Chat)
			chat.POST("/confirm", chatHandler.Confirm)
			chat.POST("/properties", chatHandler.SaveListings)
			chat.GET("/ws", chatHandler.HandleWS)

			authedChat := chat.Group("/")
			authedChat.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authedChat.GET("/history", chatHandler.History)
			}
		}

		properties := apiV1.Group("/properties")
		properties.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			properties.GET("", searchHandler.ListProperties)
			properties.GET("/search", searchHandler.SearchListings)
			properties.GET("/snapshot", searchHandler.SnapshotURL)
		}
	}

	// 9. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
