package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 注释仓库（PostgreSQL）配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN 数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置（blob 共享缓存后端）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置（跨实例失效广播）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Config 映射服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Addr string
	}

	Mapper struct {
		// CacheDir 磁盘 blob 缓存目录
		CacheDir string
		// BlobBackend "disk" 或 "redis"
		BlobBackend string
		// BlobTTL Redis 后端的 blob 过期时间（0 = 不过期）
		BlobTTL time.Duration

		// TableLifetime 默认存活时长；BulkLifetime 转储表存活时长
		TableLifetime time.Duration
		BulkLifetime  time.Duration
		SweepInterval time.Duration

		// ListURL 批量 ID 翻译服务地址
		ListURL string
		// ChunkSize 批量翻译每块的 ID 数
		ChunkSize int
		// BulkDumpURL 全量转储地址，可含 {organism} 占位符
		BulkDumpURL string
		// FetchTimeout 上游抓取超时
		FetchTimeout time.Duration

		// LoadingEnabled 关闭后只查已在场的表
		LoadingEnabled bool

		// UniProt 清理各阶段开关
		UniProt struct {
			SecondaryToPrimary bool
			TremblToSwissProt  bool
			ResolveDeleted     bool
			ProteomeFilter     bool
			KeepUnverified     bool
			GrammarFilter      bool
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "biomapper")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "biomapper")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "biomapper/invalidate")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8084")

	cfg.Mapper.CacheDir = getEnv("MAPPER_CACHE_DIR", "/var/cache/biomapper")
	cfg.Mapper.BlobBackend = getEnv("MAPPER_BLOB_BACKEND", "disk")
	cfg.Mapper.BlobTTL = getEnvDuration("MAPPER_BLOB_TTL", 0)
	cfg.Mapper.TableLifetime = getEnvDuration("MAPPER_TABLE_LIFETIME", 300*time.Second)
	cfg.Mapper.BulkLifetime = getEnvDuration("MAPPER_BULK_LIFETIME", 600*time.Second)
	cfg.Mapper.SweepInterval = getEnvDuration("MAPPER_SWEEP_INTERVAL", 10*time.Second)
	cfg.Mapper.ListURL = getEnv("MAPPER_LIST_URL", "https://rest.uniprot.org/idmapping/legacy/uploadlists")
	cfg.Mapper.ChunkSize = getEnvInt("MAPPER_CHUNK_SIZE", 10000)
	cfg.Mapper.BulkDumpURL = getEnv("MAPPER_BULK_DUMP_URL",
		"https://ftp.uniprot.org/pub/databases/uniprot/current_release/knowledgebase/idmapping/by_organism/{organism}.idmapping.dat.gz")
	cfg.Mapper.FetchTimeout = getEnvDuration("MAPPER_FETCH_TIMEOUT", 120*time.Second)
	cfg.Mapper.LoadingEnabled = getEnvBool("MAPPER_LOADING_ENABLED", true)

	cfg.Mapper.UniProt.SecondaryToPrimary = getEnvBool("MAPPER_UNIPROT_SECONDARY", true)
	cfg.Mapper.UniProt.TremblToSwissProt = getEnvBool("MAPPER_UNIPROT_TREMBL_SWISSPROT", false)
	cfg.Mapper.UniProt.ResolveDeleted = getEnvBool("MAPPER_UNIPROT_RESOLVE_DELETED", false)
	cfg.Mapper.UniProt.ProteomeFilter = getEnvBool("MAPPER_UNIPROT_PROTEOME_FILTER", true)
	cfg.Mapper.UniProt.KeepUnverified = getEnvBool("MAPPER_UNIPROT_KEEP_UNVERIFIED", false)
	cfg.Mapper.UniProt.GrammarFilter = getEnvBool("MAPPER_UNIPROT_GRAMMAR_FILTER", true)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
		// 纯数字按秒解释（与旧部署脚本兼容）
		if v, err := strconv.Atoi(value); err == nil {
			return time.Duration(v) * time.Second
		}
	}
	return defaultValue
}
