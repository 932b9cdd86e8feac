/**
 * 中继传输层
 * @author: sun977
 * @date: 2025.10.21
 * @description: 基于 gorilla/websocket 的事件帧传输，JSON 信封 {"event","data"}
 * @func: 只负责收发帧与心跳探测，认证握手与重连由连接管理器负责
 */
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	modelComm "clownetagent/internal/model/client"
)

// Conn 一条已建立的中继连接
// WriteEnvelope 不做并发保护，调用方需串行化写入
type Conn interface {
	// ReadEnvelope 阻塞读取下一帧
	ReadEnvelope() (*modelComm.Envelope, error)
	// WriteEnvelope 写入一帧
	WriteEnvelope(env *modelComm.Envelope) error
	// Latency 最近一次 ping/pong 往返耗时
	Latency() (time.Duration, bool)
	// Close 关闭连接，可重复调用
	Close() error
}

// Dialer 建立中继连接
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Options websocket 连接参数
type Options struct {
	URL              string
	Proxy            string        // socks5 代理，可选
	HandshakeTimeout time.Duration // websocket 升级超时
	WriteTimeout     time.Duration // 单帧写超时
	PingInterval     time.Duration // ping 间隔，0 表示不探测
	Header           http.Header   // 额外请求头
}

// WebsocketDialer websocket 拨号器
type WebsocketDialer struct {
	opts   Options
	dialer *websocket.Dialer
}

// NewWebsocketDialer 创建 websocket 拨号器
func NewWebsocketDialer(opts Options) (*WebsocketDialer, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("relay url is required")
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	if opts.Proxy != "" {
		proxyDialer, err := NewProxyDialer(opts.Proxy, opts.HandshakeTimeout)
		if err != nil {
			return nil, err
		}
		dialer.Proxy = nil
		dialer.NetDialContext = proxyDialer.DialContext
	}

	return &WebsocketDialer{opts: opts, dialer: dialer}, nil
}

// Dial 建立连接
func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.opts.URL, d.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", d.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.opts.URL, err)
	}

	return newWSConn(conn, d.opts.WriteTimeout, d.opts.PingInterval), nil
}

// wsConn websocket 连接
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration

	latency   atomic.Int64 // 纳秒，0 表示尚无样本
	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(conn *websocket.Conn, writeTimeout, pingInterval time.Duration) *wsConn {
	c := &wsConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}

	if pingInterval > 0 {
		// 两个探测周期内没有任何入站数据视为断线
		conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		conn.SetPongHandler(c.handlePong)
		go c.pingLoop()
	}

	return c
}

// ReadEnvelope 读取一帧
func (c *wsConn) ReadEnvelope() (*modelComm.Envelope, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		c.extendReadDeadline()

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		var env modelComm.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", modelComm.ErrInvalidPayload, err)
		}
		return &env, nil
	}
}

// WriteEnvelope 写入一帧
func (c *wsConn) WriteEnvelope(env *modelComm.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Latency 最近一次往返耗时
func (c *wsConn) Latency() (time.Duration, bool) {
	ns := c.latency.Load()
	return time.Duration(ns), ns > 0
}

// Close 关闭连接
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// 尽力发送关闭帧，失败不影响关闭
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// pingLoop 周期 ping，载荷为发送时间，用于计算往返延迟
// WriteControl 可与其他写方法并发调用
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			payload := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
			err := c.conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(c.writeTimeout))
			if err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				// 写失败时读端会因截止时间到期而返回错误
				continue
			}
		}
	}
}

func (c *wsConn) handlePong(appData string) error {
	if sentAt, err := strconv.ParseInt(appData, 10, 64); err == nil {
		if rtt := time.Now().UnixNano() - sentAt; rtt > 0 {
			c.latency.Store(rtt)
		}
	}
	c.extendReadDeadline()
	return nil
}

func (c *wsConn) extendReadDeadline() {
	if c.pingInterval > 0 {
		c.conn.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
	}
}
