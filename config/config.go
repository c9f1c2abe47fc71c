package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	GraphQL   GraphQLConfig   `mapstructure:"graphql"`
	LogLevel  string          `mapstructure:"log_level"`
}

type ServerConfig struct {
	GatewayPort int `mapstructure:"gateway_port"`
	AuthPort    int `mapstructure:"auth_port"`
	PollPort    int `mapstructure:"poll_port"`
	VotePort    int `mapstructure:"vote_port"`
	ResultsPort int `mapstructure:"results_port"`
}

type MySQLConfig struct {
	Master       string        `mapstructure:"master"`
	Slave        string        `mapstructure:"slave"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	// 数据存储Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// 锁使用的Redis节点
	LockAddresses  []string      `mapstructure:"lock_addresses"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
	LockRetryCount int           `mapstructure:"lock_retry_count"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type CacheConfig struct {
	// 结果缓存有效期
	ResultsTTL time.Duration `mapstructure:"results_ttl"`
	// 已投票标记缓存有效期
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
	// 匿名投票按IP去重的时间窗口，独立于票据和Poll过期时间
	AnonWindow time.Duration `mapstructure:"anon_window"`
}

type RateLimitConfig struct {
	Window         time.Duration `mapstructure:"window"`
	DefaultLimit   int           `mapstructure:"default_limit"`
	RegisterLimit  int           `mapstructure:"register_limit"`
	LoginLimit     int           `mapstructure:"login_limit"`
	VoteLimit      int           `mapstructure:"vote_limit"`
	AnonymousLimit int           `mapstructure:"anonymous_limit"`
}

type GatewayConfig struct {
	AuthServiceURL    string        `mapstructure:"auth_service_url"`
	PollServiceURL    string        `mapstructure:"poll_service_url"`
	VoteServiceURL    string        `mapstructure:"vote_service_url"`
	ResultsServiceURL string        `mapstructure:"results_service_url"`
	ForwardTimeout    time.Duration `mapstructure:"forward_timeout"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

var AppConfig Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &AppConfig, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("mysql.query_timeout", 3*time.Second)
	viper.SetDefault("jwt.expiry", 24*time.Hour)
	viper.SetDefault("cache.results_ttl", 30*time.Second)
	viper.SetDefault("cache.dedup_ttl", time.Hour)
	viper.SetDefault("cache.anon_window", time.Hour)
	viper.SetDefault("rate_limit.window", time.Minute)
	viper.SetDefault("rate_limit.default_limit", 100)
	viper.SetDefault("rate_limit.register_limit", 5)
	viper.SetDefault("rate_limit.login_limit", 10)
	viper.SetDefault("rate_limit.vote_limit", 20)
	viper.SetDefault("rate_limit.anonymous_limit", 10)
	viper.SetDefault("gateway.forward_timeout", 10*time.Second)
	viper.SetDefault("graphql.path", "/graphql")
}
