package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"biomapper/internal/catalog"
	"biomapper/internal/config"
	"biomapper/internal/database"
	"biomapper/internal/domain"
	"biomapper/internal/events"
	httpapi "biomapper/internal/http"
	"biomapper/internal/loader"
	mqttclient "biomapper/internal/mqtt"
	rediscommon "biomapper/internal/redis"
	"biomapper/internal/registry"
	"biomapper/internal/repository"
	"biomapper/internal/resolver"
	"biomapper/internal/store"

	"go.uber.org/zap"
)

// MapperService 标识符映射服务：装配注册表、目录、加载器、
// 解析器、失效广播与 HTTP 接口，并管理它们的生命周期
type MapperService struct {
	config   *config.Config
	logger   *zap.Logger
	db       *sql.DB
	redis    *rediscommon.Client
	mqtt     *mqttclient.Client
	registry *registry.Registry
	resolver *resolver.Resolver
	events   *events.Broadcaster
	server   *http.Server
}

// NewMapperService 创建映射服务
// PostgreSQL / Redis / MQTT 都是可选依赖：对应环境变量缺省时
// 相关能力降级（见各组件构造处的注释）
func NewMapperService(cfg *config.Config, log *zap.Logger) (*MapperService, error) {
	s := &MapperService{
		config: cfg,
		logger: log,
	}

	// PostgreSQL：UniProt 仓库（清理阶段、种子全集）与属性查询加载器
	var uniprotRepo *repository.PostgresUniProtRepository
	var attrRepo *repository.PostgresAttributeRepository
	if cfg.Database.Host != "" {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		uniprotRepo = repository.NewPostgresUniProtRepository(db, log)
		attrRepo = repository.NewPostgresAttributeRepository(db, log)
	} else {
		log.Warn("DB_HOST not set, annotation warehouse disabled")
	}

	// Blob 存储：磁盘（默认）或 Redis（多实例共享）
	var blobs store.BlobStore
	switch cfg.Mapper.BlobBackend {
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("MAPPER_BLOB_BACKEND=redis requires REDIS_ADDR")
		}
		s.redis = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), s.redis); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		blobs = store.NewRedisStore(s.redis, "", cfg.Mapper.BlobTTL, log)
	default:
		disk, err := store.NewDiskStore(cfg.Mapper.CacheDir, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init blob cache dir: %w", err)
		}
		blobs = disk
	}

	// 目录：内置资源 + 两级匹配
	cat := catalog.New(log)
	if err := catalog.RegisterBuiltins(cat, catalog.Builtins{
		ListURL:       cfg.Mapper.ListURL,
		ListChunkSize: cfg.Mapper.ChunkSize,
		BulkDumpURL:   cfg.Mapper.BulkDumpURL,
		BulkLifetime:  cfg.Mapper.BulkLifetime,
	}); err != nil {
		return nil, fmt.Errorf("failed to register builtin catalog: %w", err)
	}

	// 加载器：行源、列表翻译客户端、属性查询、种子全集、blob 缓存
	rows := loader.NewRowSource(cfg.Mapper.FetchTimeout, log)
	list := loader.NewListClient(cfg.Mapper.FetchTimeout, log)
	var attrs loader.AttributeSource
	var universe loader.Universe
	if attrRepo != nil {
		attrs = attrRepo
	}
	if uniprotRepo != nil {
		universe = uniprotRepo
	}
	ld := loader.New(rows, list, attrs, universe, blobs, cfg.Mapper.TableLifetime, log)

	// 注册表：带后台过期清扫
	s.registry = registry.New(cfg.Mapper.SweepInterval, log)

	// 解析器
	var uniprotData resolver.UniProtData
	if uniprotRepo != nil {
		uniprotData = uniprotRepo
	}
	s.resolver = resolver.New(s.registry, cat, ld, uniprotData, resolver.Config{
		LoadingEnabled: cfg.Mapper.LoadingEnabled,
		Cleanup: resolver.CleanupConfig{
			SecondaryToPrimary: cfg.Mapper.UniProt.SecondaryToPrimary,
			TremblToSwissProt:  cfg.Mapper.UniProt.TremblToSwissProt,
			ResolveDeleted:     cfg.Mapper.UniProt.ResolveDeleted,
			ProteomeFilter:     cfg.Mapper.UniProt.ProteomeFilter,
			KeepUnverified:     cfg.Mapper.UniProt.KeepUnverified,
			GrammarFilter:      cfg.Mapper.UniProt.GrammarFilter,
		},
	}, log)

	// MQTT：跨实例失效广播（可选）
	if cfg.MQTT.Broker != "" {
		mc, err := mqttclient.NewClient(&cfg.MQTT, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		s.mqtt = mc
		s.events = events.NewBroadcaster(mc, cfg.MQTT.Topic, cfg.MQTT.QoS, log)
		s.resolver.SetInvalidationHook(s.events.Broadcast)
		if err := mc.Subscribe(cfg.MQTT.Topic, cfg.MQTT.QoS, s.events.Handler(remoteInvalidator{s.resolver})); err != nil {
			return nil, fmt.Errorf("failed to subscribe to invalidation topic: %w", err)
		}
	} else {
		log.Info("MQTT_BROKER not set, invalidation broadcast disabled")
	}

	// HTTP 接口
	router := httpapi.NewRouter(log)
	router.RegisterMapperRoutes(httpapi.NewMapperHandler(s.resolver, log))
	s.server = &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	return s, nil
}

// remoteInvalidator 远端失效事件落地时绕过本地广播钩子，防止回环
type remoteInvalidator struct {
	r *resolver.Resolver
}

func (ri remoteInvalidator) Invalidate(from, to domain.Namespace, organism domain.Organism) {
	ri.r.ApplyInvalidation(from, to, organism)
}

// Start 启动服务（阻塞直到 HTTP 服务退出或 ctx 取消）
func (s *MapperService) Start(ctx context.Context) error {
	s.logger.Info("Starting mapper service",
		zap.String("addr", s.config.HTTP.Addr),
		zap.String("blob_backend", s.config.Mapper.BlobBackend),
		zap.Bool("loading_enabled", s.config.Mapper.LoadingEnabled),
	)

	s.registry.Start(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("http server error: %w", err)
	}
}

// Stop 停止服务，释放外部连接
func (s *MapperService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping mapper service")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down http server", zap.Error(err))
	}

	s.registry.Stop()

	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.redis != nil {
		if err := rediscommon.Close(s.redis); err != nil {
			s.logger.Error("Error closing redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database", zap.Error(err))
		}
	}

	s.logger.Info("Mapper service stopped")
	return nil
}
