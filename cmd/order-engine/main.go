package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/FleetEats/FleetEats/internal/common/config"
	"github.com/FleetEats/FleetEats/internal/common/db"
	"github.com/FleetEats/FleetEats/internal/common/logger"
	"github.com/FleetEats/FleetEats/internal/common/ratelimit"
	"github.com/FleetEats/FleetEats/internal/common/retry"
	"github.com/FleetEats/FleetEats/internal/common/tracing"
	"github.com/FleetEats/FleetEats/internal/degrade"
	"github.com/FleetEats/FleetEats/internal/dispatch"
	"github.com/FleetEats/FleetEats/internal/notify"
	"github.com/FleetEats/FleetEats/internal/order"
	"github.com/FleetEats/FleetEats/internal/payment"
)

var (
	configPath = flag.String("config", "configs/order-engine.json", "配置文件路径")
	consulKey  = flag.String("consul-key", "", "从 Consul KV 加载配置（优先于本地文件）")
)

func main() {
	flag.Parse()

	// 加载配置：指定了 consul key 则走配置中心，否则读本地文件
	var cfg *config.Config
	var err error
	if *consulKey != "" {
		bootstrap := config.GetConfig()
		cfg, err = config.LoadConfigFromConsulKV(bootstrap.Consul.Host, bootstrap.Consul.Port, *consulKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	_, closer, err := tracing.InitTracer(cfg.Engine.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(&order.Order{}, &order.OrderItem{}, &dispatch.Driver{}); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Retry.BaseBackoffMS) * time.Millisecond,
		MaxBackoff:  time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
	}

	// 降级缓存：启用 Redis 时跨实例共享兜底值，否则进程内
	var store degrade.Store
	if cfg.Redis.Enabled {
		store = degrade.NewRedisStore(
			fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize,
			cfg.Engine.Name,
		)
	} else {
		store = degrade.NewMemoryStore()
	}
	fallback := degrade.NewCache(store, degrade.NewHealthTracker(3, 30*time.Second), log)

	// 通知出口：Kafka 事件或本地日志，统一套一层限流
	var dispatcher notify.Dispatcher
	if cfg.Kafka.Enabled {
		kafka, err := notify.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Fatalf("failed to init kafka dispatcher: %v", err)
		}
		defer kafka.Close()
		dispatcher = kafka
	} else {
		dispatcher = notify.NewLogDispatcher(log)
	}
	dispatcher = notify.NewLimited(ratelimit.NewTokenBucket(100, 50), dispatcher, log)

	payments := payment.NewCoordinator(
		devGateway{},
		policy,
		time.Duration(cfg.Payment.AuthorizeTimeoutMS)*time.Millisecond,
		time.Duration(cfg.Payment.RefundTimeoutMS)*time.Millisecond,
		log,
	)
	drivers := dispatch.NewCoordinator(
		devGeocoder{},
		dispatch.NewGormDirectory(gormDB),
		cfg.Dispatch.SearchRadiusMeters,
		time.Duration(cfg.Dispatch.QueryTimeoutMS)*time.Millisecond,
		policy,
		log,
	)

	engine := order.NewOrchestrator(order.Deps{
		Repo:     order.NewGormRepository(gormDB),
		Payments: payments,
		Drivers:  drivers,
		Notifier: dispatcher,
		Tracker:  notify.NewLogTracker(log),
		Fallback: fallback,
		Retry:    policy,
		Log:      log,
	})

	log.Infof("%s started, active orders: %d", cfg.Engine.Name, engine.ActiveCount())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Infof("%s shutting down", cfg.Engine.Name)
}

// devGateway 本地开发用的支付网关桩：直接批准授权。
// 生产部署时替换为真实网关客户端。
type devGateway struct{}

func (devGateway) Authorize(ctx context.Context, o *order.Order) (payment.Result, error) {
	return payment.Result{
		TransactionID: uuid.NewString(),
		AmountCents:   o.TotalCents,
		Timestamp:     time.Now(),
	}, nil
}

func (devGateway) Refund(ctx context.Context, transactionID string, amountCents int64) error {
	return nil
}

// devGeocoder 本地开发用的地理编码桩：固定返回市中心坐标。
type devGeocoder struct{}

func (devGeocoder) Geocode(ctx context.Context, addr order.Address) (*dispatch.Coordinate, error) {
	return &dispatch.Coordinate{Lat: 51.5074, Lng: -0.1278}, nil
}
