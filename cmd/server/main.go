// Package main 是应用程序的入口点。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"boxing-locker-go/internal/config"
	"boxing-locker-go/internal/handler"
	"boxing-locker-go/internal/middleware"
	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/pipeline"
	"boxing-locker-go/internal/repository"
	"boxing-locker-go/internal/service"
	"boxing-locker-go/pkg/database"
	"boxing-locker-go/pkg/es"
	"boxing-locker-go/pkg/kafka"
	"boxing-locker-go/pkg/llm"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/reconcile"
	"boxing-locker-go/pkg/storage"
	"boxing-locker-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(database.DB); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
		log.Info("数据库迁移完成")
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)

	var videoIndex service.VideoIndex
	if cfg.Video.SearchBackend == "elasticsearch" {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败 %s", err)
			return
		}
		videoIndex = es.NewVideoIndex(es.ESClient, cfg.Elasticsearch.IndexName)
	}

	kafkaEnabled := cfg.Kafka.Brokers != ""
	if kafkaEnabled {
		kafka.InitProducer(cfg.Kafka)
		defer kafka.CloseProducer()
	}

	// 4. 初始化 Repository
	sessionRepo := repository.NewSessionRepository(database.DB)
	videoRepo := repository.NewVideoRepository(database.DB)
	videoCacheRepo := repository.NewVideoCacheRepository(database.RDB, time.Duration(cfg.Video.CacheTTLSeconds)*time.Second)
	ticketRepo := repository.NewVoiceTicketRepository(database.RDB)
	leadRepo := repository.NewLeadRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	llmClient := llm.NewClient(cfg.LLM)
	ticketManager := token.NewVoiceTicketManager(cfg.JWT.Secret, cfg.JWT.VoiceTicketExpireMin)
	planStore := storage.NewPlanStore(storage.MinioClient, cfg.MinIO.BucketName, cfg.MinIO.URLExpireMin)

	sessionService := service.NewSessionService(sessionRepo)
	videoService := service.NewVideoService(videoRepo, videoCacheRepo, videoIndex)
	resolver := reconcile.NewResolver(videoService.LookupTerm, 0)
	chatService := service.NewChatService(sessionService, llmClient, resolver)
	var leads service.LeadPublisher
	if kafkaEnabled {
		leads = service.LeadPublisherFunc(kafka.ProduceLeadTask)
	}
	coachService := service.NewCoachService(llmClient, videoService, leads, cfg.LLM.MaxToolSteps)
	faqService := service.NewFAQService(cfg.Content.FAQPath)
	voiceService := service.NewVoiceService(ticketManager, ticketRepo, faqService, service.GeminiSessionFactory(cfg.Voice), planStore, cfg.Voice.Model)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// 6. 导入种子视频目录并同步检索索引
	go initSeedVideos(bgCtx, cfg.Video.SeedPath, videoService)

	// 7. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if kafkaEnabled {
		processor := pipeline.NewLeadProcessor(leadRepo)
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(bgCtx, cfg.Kafka, processor)
		}()
	} else {
		close(consumerDone)
		log.Warnf("未配置 Kafka brokers，线索管道已关闭")
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	registerRoutes(r, handler.NewChatHandler(chatService, sessionService), handler.NewCoachHandler(coachService),
		handler.NewVideoHandler(videoService), handler.NewVoiceHandler(voiceService, faqService), voiceService)

	// 启动 HTTP 服务器并实现优雅停机
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

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并等待其退出
	cancelBg()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}

func registerRoutes(r *gin.Engine, chat *handler.ChatHandler, coach *handler.CoachHandler, videos *handler.VideoHandler, voice *handler.VoiceHandler, voiceService service.VoiceService) {
	api := r.Group("/api")
	{
		api.POST("/chat", chat.Send)
		api.GET("/chat", chat.Get)
		api.DELETE("/chat", chat.Delete)

		api.POST("/coach", coach.Submit)

		api.GET("/videos/search", videos.Search)
		api.GET("/videos/:videoId", videos.Get)

		voiceGroup := api.Group("/voice")
		{
			voiceGroup.POST("/connect", voice.Connect)
			voiceGroup.GET("/faq", voice.FAQ)
			voiceGroup.GET("/live/:token", middleware.VoiceTicketMiddleware(voiceService), voice.Live)
		}
	}
}

// initSeedVideos 从 JSON 文件导入人工整理的视频（幂等），随后同步检索索引。
func initSeedVideos(ctx context.Context, path string, videoService service.VideoService) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Infof("initSeedVideos: 文件 '%s' 不存在或不可用，跳过导入", path)
		} else {
			var videos []model.VideoRecord
			if err := json.Unmarshal(data, &videos); err != nil {
				log.Warnf("initSeedVideos: 解析 '%s' 失败: %v", path, err)
			} else if n, err := videoService.Import(ctx, videos); err != nil {
				log.Warnf("initSeedVideos: 导入失败: %v", err)
			} else {
				log.Infof("initSeedVideos: 导入完成, 共 %d 条", n)
			}
		}
	}

	if err := videoService.SyncIndex(ctx); err != nil {
		log.Warnf("initSeedVideos: 同步视频索引失败: %v", err)
	}
}
