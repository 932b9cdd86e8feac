package audit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink 审计镜像
type Sink interface {
	Name() string
	Write(event string, line []byte) error
	Close() error
}

// streamWriter go-redis 客户端中用到的部分
type streamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisOptions Redis Stream 镜像参数
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
	Timeout  time.Duration
}

// RedisSink 把审计行追加到 Redis Stream
type RedisSink struct {
	client  streamWriter
	stream  string
	maxLen  int64
	timeout time.Duration
}

// NewRedisSink 创建 Redis Stream 镜像，连接在第一次写入时建立
func NewRedisSink(opts RedisOptions) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisSink(client, opts)
}

func newRedisSink(client streamWriter, opts RedisOptions) *RedisSink {
	if opts.Stream == "" {
		opts.Stream = "clownet:traffic"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &RedisSink{
		client:  client,
		stream:  opts.Stream,
		maxLen:  opts.MaxLen,
		timeout: opts.Timeout,
	}
}

// Name 镜像名称
func (s *RedisSink) Name() string { return "redis" }

// Write XADD 一条记录，MaxLen 为近似裁剪
func (s *RedisSink) Write(event string, line []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]interface{}{
			"event": event,
			"line":  string(line),
		},
	}).Err()
}

// Close 关闭连接
func (s *RedisSink) Close() error {
	return s.client.Close()
}
