package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyDialer 代理拨号器 (支持 SOCKS5)
// 作为 websocket.Dialer.NetDialContext 使用，让中继连接经由代理出网
type ProxyDialer struct {
	ProxyURL *url.URL
	Timeout  time.Duration
	forward  proxy.Dialer
}

// NewProxyDialer 创建代理拨号器
// proxyAddr 格式: socks5://[user:pass@]host:port
func NewProxyDialer(proxyAddr string, timeout time.Duration) (*ProxyDialer, error) {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %v", err)
	}

	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		// HTTP 代理需要 CONNECT，websocket 库对 http(s)_proxy 环境变量已有支持
		return nil, fmt.Errorf("unsupported proxy scheme: %s (only socks5 is supported)", u.Scheme)
	}

	var auth *proxy.Auth
	if u.User != nil {
		auth = &proxy.Auth{User: u.User.Username()}
		if p, ok := u.User.Password(); ok {
			auth.Password = p
		}
	}

	base := &net.Dialer{Timeout: timeout}
	forward, err := proxy.SOCKS5("tcp", u.Host, auth, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %v", err)
	}

	return &ProxyDialer{
		ProxyURL: u,
		Timeout:  timeout,
		forward:  forward,
	}, nil
}

// DialContext 经代理建立连接
func (d *ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := d.forward.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	// 不支持 context 的拨号器，用 goroutine + select 模拟取消
	type dialResult struct {
		Conn net.Conn
		Err  error
	}

	ch := make(chan dialResult, 1)
	go func() {
		conn, err := d.forward.Dial(network, address)
		ch <- dialResult{Conn: conn, Err: err}
	}()

	select {
	case <-ctx.Done():
		// 拨号稍后成功的连接需要关闭，避免泄漏
		go func() {
			if res := <-ch; res.Conn != nil {
				res.Conn.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-ch:
		return res.Conn, res.Err
	}
}
