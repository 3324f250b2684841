package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SMTP 安全模式
const (
	SecurityTLS      = "tls"      // 隐式 TLS（SMTPS）
	SecurityStartTLS = "starttls" // 明文连接后升级
	SecurityNone     = "none"     // 不加密，仅用于本地测试
)

// ServerConfig 定义运维 HTTP 端点的监听配置
type ServerConfig struct {
	Host string // 监听地址，默认 "127.0.0.1"
	Port int    // 监听端口，默认 8082
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 控制台日志级别: debug, info, warn, error
	File        string // 日志文件路径，留空表示不写文件
	Development bool   // 开发模式: 控制台编码与详细堆栈
	MaxSize     int    // 单个日志文件最大大小（MB）
	MaxBackups  int    // 保留的旧日志文件数
	MaxAge      int    // 旧日志保留天数
	Compress    bool   // 是否压缩旧日志
}

// SMTPConfig 定义出站邮件服务器配置
type SMTPConfig struct {
	Host               string        // SMTP 服务器地址
	Port               int           // SMTP 端口，默认 25
	Username           string        // AUTH 用户名，留空表示不认证
	Password           string        // AUTH 密码
	From               string        // 默认发件人
	Security           string        // tls / starttls / none
	Timeout            time.Duration // 调用方等待投递结果的上限
	InsecureSkipVerify bool          // 跳过证书校验
}

// Addr 返回 host:port
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReporterConfig 定义异常邮件报告配置
type ReporterConfig struct {
	Enabled      bool          // 是否发送异常邮件
	From         string        // 发件地址
	To           string        // 运维收件地址
	Subject      string        // 邮件主题
	Rate         time.Duration // 两次报告的最小间隔
	Burst        int           // 突发上限
	FlushTimeout time.Duration // 重新 panic 前等待投递的时间
	DedupWindow  time.Duration // 相同异常的静默窗口，0 表示不去重
}

// Config 是系统配置的根结构体
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	SMTP     SMTPConfig
	Reporter ReporterConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: GLBACKEND_
// 例如: GLBACKEND_LOG_FILE, GLBACKEND_SMTP_HOST
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("glbackend")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Log: LogConfig{
			Level:       strings.ToLower(v.GetString("log.level")),
			File:        v.GetString("log.file"),
			Development: v.GetBool("log.development"),
			MaxSize:     v.GetInt("log.max_size"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAge:      v.GetInt("log.max_age"),
			Compress:    v.GetBool("log.compress"),
		},
		SMTP: SMTPConfig{
			Host:               v.GetString("smtp.host"),
			Port:               v.GetInt("smtp.port"),
			Username:           v.GetString("smtp.username"),
			Password:           v.GetString("smtp.password"),
			From:               v.GetString("smtp.from"),
			Security:           strings.ToLower(v.GetString("smtp.security")),
			InsecureSkipVerify: v.GetBool("smtp.insecure_skip_verify"),
		},
		Reporter: ReporterConfig{
			Enabled: v.GetBool("reporter.enabled"),
			From:    v.GetString("reporter.from"),
			To:      v.GetString("reporter.to"),
			Subject: v.GetString("reporter.subject"),
			Burst:   v.GetInt("reporter.burst"),
		},
	}

	var err error
	if cfg.SMTP.Timeout, err = parseDuration(v, "smtp.timeout"); err != nil {
		return nil, err
	}
	if cfg.Reporter.Rate, err = parseDuration(v, "reporter.rate"); err != nil {
		return nil, err
	}
	if cfg.Reporter.FlushTimeout, err = parseDuration(v, "reporter.flush_timeout"); err != nil {
		return nil, err
	}
	if cfg.Reporter.DedupWindow, err = parseDuration(v, "reporter.dedup_window"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8082)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.development", false)
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.security", SecurityTLS)
	v.SetDefault("smtp.timeout", "30s")
	v.SetDefault("smtp.insecure_skip_verify", false)
	v.SetDefault("reporter.enabled", false)
	v.SetDefault("reporter.from", "")
	v.SetDefault("reporter.to", "")
	v.SetDefault("reporter.subject", "GLBackend Exception")
	v.SetDefault("reporter.rate", "1m")
	v.SetDefault("reporter.burst", 5)
	v.SetDefault("reporter.flush_timeout", "10s")
	v.SetDefault("reporter.dedup_window", "10m")
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp.port: %d", c.SMTP.Port)
	}

	switch c.SMTP.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return fmt.Errorf("invalid smtp.security %q: must be one of tls, starttls, none", c.SMTP.Security)
	}

	if c.Reporter.Burst <= 0 {
		c.Reporter.Burst = 1
	}

	if c.Reporter.Enabled {
		if c.Reporter.To == "" || c.Reporter.From == "" {
			return fmt.Errorf("reporter.from and reporter.to are required when reporter is enabled")
		}
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required when reporter is enabled")
		}
	}

	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 文件不存在时静默失败；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
