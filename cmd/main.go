package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lvdashuaibi/pollhub/config"
	"github.com/lvdashuaibi/pollhub/internal/api"
	"github.com/lvdashuaibi/pollhub/internal/auth"
	"github.com/lvdashuaibi/pollhub/internal/dedup"
	"github.com/lvdashuaibi/pollhub/internal/gateway"
	intkafka "github.com/lvdashuaibi/pollhub/internal/kafka"
	"github.com/lvdashuaibi/pollhub/internal/lock"
	"github.com/lvdashuaibi/pollhub/internal/ratelimit"
	"github.com/lvdashuaibi/pollhub/internal/repository"
	"github.com/lvdashuaibi/pollhub/internal/service"
	"github.com/lvdashuaibi/pollhub/pkg/logger"
	"go.uber.org/zap"
)

var (
	configPath  = flag.String("config", "config/config.yaml", "配置文件路径")
	serviceName = flag.String("service", "all", "要启动的服务: gateway|auth|poll|vote|results|all")
	initSchema  = flag.Bool("init-schema", false, "启动时初始化数据库表结构")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("配置加载成功", zap.String("service", *serviceName))

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	runGateway := *serviceName == "gateway" || *serviceName == "all"
	runBackend := *serviceName != "gateway"

	if runBackend {
		// 创建数据库连接
		mysqlRepo, err := repository.NewMySQLRepository()
		if err != nil {
			zapLogger.Fatal("初始化MySQL仓库失败", zap.Error(err))
		}
		defer mysqlRepo.Close()
		zapLogger.Info("MySQL仓库初始化成功")

		if *initSchema {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := mysqlRepo.EnsureSchema(ctx); err != nil {
				cancel()
				zapLogger.Fatal("初始化表结构失败", zap.Error(err))
			}
			cancel()
			zapLogger.Info("表结构初始化成功")
		}

		// 创建Redis连接
		redisRepo, err := repository.NewRedisRepository()
		if err != nil {
			zapLogger.Fatal("初始化Redis仓库失败", zap.Error(err))
		}
		defer redisRepo.Close()
		zapLogger.Info("Redis仓库初始化成功")

		if *serviceName == "auth" || *serviceName == "all" {
			authService := service.NewAuthService(mysqlRepo, tokens, zapLogger)
			authServer := api.NewAuthServer(authService, zapLogger)
			go func() {
				if err := authServer.Start(cfg.Server.AuthPort); err != nil {
					zapLogger.Fatal("启动认证服务失败", zap.Error(err))
				}
			}()
		}

		if *serviceName == "poll" || *serviceName == "all" {
			pollService := service.NewPollService(mysqlRepo, zapLogger)
			pollServer := api.NewPollServer(pollService, tokens, zapLogger)
			go func() {
				if err := pollServer.Start(cfg.Server.PollPort); err != nil {
					zapLogger.Fatal("启动Poll服务失败", zap.Error(err))
				}
			}()
		}

		if *serviceName == "vote" || *serviceName == "all" {
			// 创建Kafka生产者
			producer, err := intkafka.NewProducer()
			if err != nil {
				zapLogger.Fatal("初始化Kafka生产者失败", zap.Error(err))
			}
			defer producer.Close()
			zapLogger.Info("Kafka生产者初始化成功")

			// 两级防重检查：缓存快速路径在前，数据库权威路径兜底
			checker := dedup.NewTiered(zapLogger,
				dedup.NewCacheChecker(redisRepo),
				dedup.NewStoreChecker(mysqlRepo),
			)

			voteService := service.NewVoteService(
				mysqlRepo, mysqlRepo, checker, redisRepo,
				producer, redisRepo, cfg.Cache.AnonWindow, zapLogger,
			)
			voteServer := api.NewVoteServer(voteService, tokens, zapLogger)
			go func() {
				if err := voteServer.Start(cfg.Server.VotePort); err != nil {
					zapLogger.Fatal("启动投票服务失败", zap.Error(err))
				}
			}()
		}

		if *serviceName == "results" || *serviceName == "all" {
			// 缓存重建的single-flight锁
			rebuildLock, err := lock.NewRedLock(zapLogger)
			if err != nil {
				zapLogger.Fatal("初始化分布式锁失败", zap.Error(err))
			}
			defer rebuildLock.Close()

			resultsService := service.NewResultsService(mysqlRepo, mysqlRepo, redisRepo, rebuildLock, zapLogger)

			// 消费投票事件，主动失效结果缓存
			consumer, err := intkafka.NewConsumer(zapLogger)
			if err != nil {
				zapLogger.Fatal("初始化Kafka消费者失败", zap.Error(err))
			}
			defer consumer.Stop()
			consumer.StartConsuming(resultsService.ProcessVoteEvent)

			resultsServer := api.NewResultsServer(resultsService, tokens, zapLogger)
			go func() {
				if err := resultsServer.Start(cfg.Server.ResultsPort); err != nil {
					zapLogger.Fatal("启动结果服务失败", zap.Error(err))
				}
			}()
		}
	}

	if runGateway {
		limiter := ratelimit.NewLimiter(cfg.RateLimit.Window)
		gw := gateway.New(
			gateway.ServiceURLs{
				Auth:    cfg.Gateway.AuthServiceURL,
				Poll:    cfg.Gateway.PollServiceURL,
				Vote:    cfg.Gateway.VoteServiceURL,
				Results: cfg.Gateway.ResultsServiceURL,
			},
			limiter,
			gateway.Limits{
				Default:   cfg.RateLimit.DefaultLimit,
				Register:  cfg.RateLimit.RegisterLimit,
				Login:     cfg.RateLimit.LoginLimit,
				Vote:      cfg.RateLimit.VoteLimit,
				Anonymous: cfg.RateLimit.AnonymousLimit,
			},
			cfg.Gateway.ForwardTimeout,
			zapLogger,
		)
		go func() {
			if err := gw.Start(cfg.Server.GatewayPort); err != nil {
				zapLogger.Fatal("启动网关失败", zap.Error(err))
			}
		}()
	}

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("正在关闭服务...")
}
