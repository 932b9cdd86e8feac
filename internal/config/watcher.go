package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher 配置文件监听器
//
// 工作原理：
// 1. 使用 fsnotify 监听配置文件所在目录
// 2. 当文件发生变化时，防抖后重新加载配置
// 3. 校验身份字段未变更，再通过回调函数通知配置变更
//
// 注意事项：
// - Agent ID 与角色在进程生命周期内不可变，变更会被拒绝
// - 回调只应处理可热更新的配置（日志级别、上报间隔等）
type ConfigWatcher struct {
	configFile  string
	config      *Config
	newLoader   func() *ConfigLoader
	watcher     *fsnotify.Watcher
	callbacks   []ConfigChangeCallback
	onError     func(error)
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	reloadDelay time.Duration
	lastReload  time.Time
}

// ConfigChangeCallback 配置变更回调函数
type ConfigChangeCallback func(oldConfig, newConfig *Config) error

// NewConfigWatcher 创建配置监听器
// newLoader 每次重载都会创建新的加载器，以保留命令行覆盖项
func NewConfigWatcher(current *Config, configFile string, newLoader func() *ConfigLoader) (*ConfigWatcher, error) {
	if configFile == "" {
		return nil, fmt.Errorf("config file path is empty")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConfigWatcher{
		configFile:  configFile,
		config:      current,
		newLoader:   newLoader,
		watcher:     watcher,
		callbacks:   make([]ConfigChangeCallback, 0),
		onError:     func(error) {},
		ctx:         ctx,
		cancel:      cancel,
		reloadDelay: 1 * time.Second, // 防抖延迟
	}, nil
}

// Start 启动配置监听
func (cw *ConfigWatcher) Start() error {
	// 监听目录而不是文件，编辑器的原子替换写入会导致文件句柄失效
	dir := filepath.Dir(cw.configFile)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config dir %s: %w", dir, err)
	}

	go cw.watchLoop()
	return nil
}

// Stop 停止配置监听
func (cw *ConfigWatcher) Stop() error {
	cw.cancel()
	return cw.watcher.Close()
}

// GetConfig 获取当前配置
func (cw *ConfigWatcher) GetConfig() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// AddCallback 添加配置变更回调
func (cw *ConfigWatcher) AddCallback(callback ConfigChangeCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// OnError 设置错误处理函数
func (cw *ConfigWatcher) OnError(handler func(error)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.onError = handler
}

// watchLoop 监听循环
func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case <-cw.ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.reportError(fmt.Errorf("config watcher error: %w", err))
		}
	}
}

// handleFileEvent 处理文件事件
func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(cw.configFile) {
		return
	}

	// 只处理写入和创建事件
	if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
		// 防抖处理，避免频繁重载
		cw.mu.Lock()
		now := time.Now()
		if now.Sub(cw.lastReload) < cw.reloadDelay {
			cw.mu.Unlock()
			return
		}
		cw.lastReload = now
		cw.mu.Unlock()

		// 延迟重载，确保文件写入完成
		time.AfterFunc(cw.reloadDelay, func() {
			if err := cw.reloadConfig(); err != nil {
				cw.reportError(err)
			}
		})
	}
}

// reloadConfig 重新加载配置
func (cw *ConfigWatcher) reloadConfig() error {
	newConfig, err := cw.newLoader().LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	cw.mu.RLock()
	oldConfig := cw.config
	callbacks := append([]ConfigChangeCallback(nil), cw.callbacks...)
	cw.mu.RUnlock()

	if err := ValidateConfigChange(oldConfig, newConfig); err != nil {
		return err
	}

	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			return fmt.Errorf("config change callback failed: %w", err)
		}
	}

	cw.mu.Lock()
	cw.config = newConfig
	cw.mu.Unlock()
	return nil
}

func (cw *ConfigWatcher) reportError(err error) {
	cw.mu.RLock()
	handler := cw.onError
	cw.mu.RUnlock()
	handler(err)
}

// ValidateConfigChange 验证配置变更
func ValidateConfigChange(oldConfig, newConfig *Config) error {
	// 自动生成的ID每次加载都会变化，只有显式配置的ID才参与比较
	if newConfig.Agent.ID != oldConfig.Agent.ID && !isGeneratedID(newConfig.Agent.ID, newConfig.Agent.Hostname) {
		return fmt.Errorf("agent ID cannot be changed during runtime")
	}

	if oldConfig.Agent.Role != newConfig.Agent.Role {
		return fmt.Errorf("agent role cannot be changed during runtime")
	}

	if oldConfig.Relay.URL != newConfig.Relay.URL {
		return fmt.Errorf("relay url cannot be changed during runtime")
	}

	return nil
}

// isGeneratedID 判断是否为自动生成的ID
func isGeneratedID(id, hostname string) bool {
	prefix := "node-" + hostname + "-"
	return len(id) == len(prefix)+8 && id[:len(prefix)] == prefix
}
