package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "CLOWNET"

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string
	configFile string
	envPrefix  string
	overrides  map[string]interface{}
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
// configPath 可以是目录，也可以是具体的 yaml 文件
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = EnvPrefix
	}

	cl := &ConfigLoader{
		envPrefix: envPrefix,
		overrides: make(map[string]interface{}),
		viper:     viper.New(),
	}

	if strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml") {
		cl.configFile = configPath
		cl.configPath = filepath.Dir(configPath)
	} else {
		cl.configPath = configPath
	}

	return cl
}

// WithOverride 设置命令行覆盖项，优先级最高
func (cl *ConfigLoader) WithOverride(key string, value interface{}) *ConfigLoader {
	cl.overrides[key] = value
	return cl
}

// LoadConfig 加载配置
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	// 设置配置文件类型
	cl.viper.SetConfigType("yaml")

	// 设置环境变量前缀
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 绑定环境变量
	cl.bindEnvVars()

	// 设置默认值
	cl.setDefaults()

	// 加载配置文件
	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// 命令行覆盖
	for key, value := range cl.overrides {
		cl.viper.Set(key, value)
	}

	// 解析配置
	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 补全运行期默认值
	cl.fillRuntimeDefaults(&config)

	// 验证配置
	if err := cl.validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadConfigFile 加载配置文件，文件不存在时使用默认值与环境变量
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configFile != "" {
		cl.viper.SetConfigFile(cl.configFile)
		return cl.viper.ReadInConfig()
	}

	if cl.configPath == "" {
		// 尝试从环境变量获取配置文件路径
		if envPath := os.Getenv(cl.envPrefix + "_CONFIG_PATH"); envPath != "" {
			cl.configPath = envPath
		} else {
			cl.configPath = "./configs"
		}
	}

	// 设置配置文件搜索路径
	cl.viper.AddConfigPath(cl.configPath)
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")

	// 优先加载环境特定的配置文件
	cl.viper.SetConfigName(fmt.Sprintf("config.%s", cl.getEnvironment()))
	err := cl.viper.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return err
	}

	cl.viper.SetConfigName("config")
	if err := cl.viper.ReadInConfig(); err != nil {
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// getEnvironment 获取运行环境
func (cl *ConfigLoader) getEnvironment() string {
	env := os.Getenv(cl.envPrefix + "_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "development"
	}
	return env
}

// bindEnvVars 绑定环境变量
func (cl *ConfigLoader) bindEnvVars() {
	p := cl.envPrefix

	// App配置
	cl.viper.BindEnv("app.environment", p+"_APP_ENVIRONMENT")
	cl.viper.BindEnv("app.debug", p+"_APP_DEBUG")

	// Server配置
	cl.viper.BindEnv("server.enabled", p+"_SERVER_ENABLED")
	cl.viper.BindEnv("server.host", p+"_SERVER_HOST")
	cl.viper.BindEnv("server.port", p+"_SERVER_PORT")
	cl.viper.BindEnv("server.api_key", p+"_SERVER_API_KEY")

	// Relay配置
	cl.viper.BindEnv("relay.url", p+"_RELAY_URL", "CLAWNET_SERVER")
	cl.viper.BindEnv("relay.token", p+"_RELAY_TOKEN", "CLAWNET_SECRET_KEY")
	cl.viper.BindEnv("relay.proxy", p+"_RELAY_PROXY")

	// Agent配置
	cl.viper.BindEnv("agent.id", p+"_AGENT_ID", "AGENT_ID")
	cl.viper.BindEnv("agent.role", p+"_AGENT_ROLE", "AGENT_ROLE")
	cl.viper.BindEnv("agent.tenant", p+"_AGENT_TENANT")

	// Brain配置
	cl.viper.BindEnv("brain.bin", p+"_BRAIN_BIN", "OPENCLAW_BIN")
	cl.viper.BindEnv("brain.session_id", p+"_BRAIN_SESSION_ID")

	// 审计配置
	cl.viper.BindEnv("audit.file_path", p+"_AUDIT_FILE_PATH")
	cl.viper.BindEnv("audit.redis.enabled", p+"_AUDIT_REDIS_ENABLED")
	cl.viper.BindEnv("audit.redis.addr", p+"_AUDIT_REDIS_ADDR")
	cl.viper.BindEnv("audit.redis.password", p+"_AUDIT_REDIS_PASSWORD")

	// 日志配置
	cl.viper.BindEnv("log.level", p+"_LOG_LEVEL")
	cl.viper.BindEnv("log.file_path", p+"_LOG_FILE_PATH")
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	// App默认值
	cl.viper.SetDefault("app.name", "ClawNet-Agent")
	cl.viper.SetDefault("app.environment", "development")
	cl.viper.SetDefault("app.debug", false)

	// Server默认值
	cl.viper.SetDefault("server.enabled", true)
	cl.viper.SetDefault("server.host", "127.0.0.1")
	cl.viper.SetDefault("server.port", 18790)
	cl.viper.SetDefault("server.mode", "release")
	cl.viper.SetDefault("server.read_timeout", "10s")
	cl.viper.SetDefault("server.write_timeout", "10s")
	cl.viper.SetDefault("server.idle_timeout", "60s")

	// Relay默认值
	cl.viper.SetDefault("relay.url", "ws://localhost:3000/agent")
	cl.viper.SetDefault("relay.token", "")
	cl.viper.SetDefault("relay.handshake_timeout", "10s")
	cl.viper.SetDefault("relay.base_backoff", "5s")
	cl.viper.SetDefault("relay.max_backoff", "60s")
	cl.viper.SetDefault("relay.jitter", 0.0)
	cl.viper.SetDefault("relay.write_timeout", "10s")
	cl.viper.SetDefault("relay.ping_interval", "25s")
	cl.viper.SetDefault("relay.proxy", "")

	// Agent默认值
	cl.viper.SetDefault("agent.id", "")
	cl.viper.SetDefault("agent.role", RoleWorker)
	cl.viper.SetDefault("agent.hostname", "")
	cl.viper.SetDefault("agent.trusted_senders", []string{"master-ui"})
	cl.viper.SetDefault("agent.reply_target", "master-ui")
	cl.viper.SetDefault("agent.command_cache_size", 200)
	cl.viper.SetDefault("agent.command_cache_ttl", "1h")

	// 执行器默认值
	cl.viper.SetDefault("executor.shell_timeout", "120s")
	cl.viper.SetDefault("executor.brain_timeout", "120s")
	cl.viper.SetDefault("executor.shell", defaultShell())

	// Brain默认值
	cl.viper.SetDefault("brain.bin", "openclaw")
	cl.viper.SetDefault("brain.session_id", "clownet-relay")
	cl.viper.SetDefault("brain.agent_command", "agent")
	cl.viper.SetDefault("brain.sessions_command", "sessions")
	cl.viper.SetDefault("brain.status_timeout", "10s")

	// 上报默认值
	cl.viper.SetDefault("report.interval", "30s")
	cl.viper.SetDefault("report.disk_path", "/")

	// 审计默认值
	cl.viper.SetDefault("audit.file_path", "./logs/traffic.jsonl")
	cl.viper.SetDefault("audit.max_size", 100)
	cl.viper.SetDefault("audit.max_backups", 10)
	cl.viper.SetDefault("audit.max_age", 30)
	cl.viper.SetDefault("audit.compress", true)
	cl.viper.SetDefault("audit.queue_size", 1024)
	cl.viper.SetDefault("audit.redis.enabled", false)
	cl.viper.SetDefault("audit.redis.addr", "localhost:6379")
	cl.viper.SetDefault("audit.redis.db", 0)
	cl.viper.SetDefault("audit.redis.stream", "clownet:traffic")
	cl.viper.SetDefault("audit.redis.max_len", 100000)
	cl.viper.SetDefault("audit.redis.timeout", "2s")

	// 日志默认值
	cl.viper.SetDefault("log.level", "info")
	cl.viper.SetDefault("log.format", "json")
	cl.viper.SetDefault("log.output", "stdout")
	cl.viper.SetDefault("log.file_path", "./logs/agent.log")
	cl.viper.SetDefault("log.max_size", 100)
	cl.viper.SetDefault("log.max_backups", 3)
	cl.viper.SetDefault("log.max_age", 28)
	cl.viper.SetDefault("log.compress", true)
	cl.viper.SetDefault("log.caller", false)
}

// fillRuntimeDefaults 补全需要运行期计算的默认值
func (cl *ConfigLoader) fillRuntimeDefaults(config *Config) {
	if config.Agent == nil {
		config.Agent = &AgentConfig{}
	}
	if config.Agent.Hostname == "" {
		config.Agent.Hostname = defaultHostname()
	}
	if config.Agent.ID == "" {
		config.Agent.ID = generateAgentID(config.Agent.Hostname)
	}
	config.Agent.Role = strings.ToLower(strings.TrimSpace(config.Agent.Role))
}

// validateConfig 验证配置
func (cl *ConfigLoader) validateConfig(config *Config) error {
	if config.Relay == nil || config.Relay.URL == "" {
		return fmt.Errorf("relay url is required")
	}

	if !strings.HasPrefix(config.Relay.URL, "ws://") && !strings.HasPrefix(config.Relay.URL, "wss://") {
		return fmt.Errorf("relay url must use ws:// or wss:// scheme: %s", config.Relay.URL)
	}

	if config.Relay.BaseBackoff <= 0 || config.Relay.MaxBackoff < config.Relay.BaseBackoff {
		return fmt.Errorf("invalid relay backoff: base=%s max=%s", config.Relay.BaseBackoff, config.Relay.MaxBackoff)
	}

	if config.Relay.Jitter < 0 || config.Relay.Jitter > 1 {
		return fmt.Errorf("relay jitter must be within [0,1]: %v", config.Relay.Jitter)
	}

	if config.Agent.Role != RoleWorker && config.Agent.Role != RoleWarden {
		return fmt.Errorf("invalid agent role: %s", config.Agent.Role)
	}

	if config.Server != nil && config.Server.Enabled {
		if config.Server.Port <= 0 || config.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d", config.Server.Port)
		}
	}

	if config.Executor == nil || config.Executor.ShellTimeout <= 0 {
		return fmt.Errorf("executor shell timeout must be positive")
	}

	if config.Executor.BrainTimeout <= 0 {
		return fmt.Errorf("executor brain timeout must be positive")
	}

	if config.Report == nil || config.Report.Interval <= 0 {
		return fmt.Errorf("report interval must be positive")
	}

	return nil
}

// GetConfigPath 获取配置文件路径
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	return NewConfigLoader(configFile, EnvPrefix).LoadConfig()
}
