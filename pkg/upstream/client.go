// Package upstream 是课程、用户等外部服务的 HTTP 客户端。
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stututor-go/internal/config"
)

// maxBodyBytes 限制读取的上游响应大小。
const maxBodyBytes = 16 << 20

// Response 是上游的原始响应。
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK 判断状态码是否为 2xx。
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON 把响应体解析为任意 JSON 值。
func (r *Response) JSON() (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, fmt.Errorf("解析上游响应失败: %w", err)
	}
	return v, nil
}

// Client 转发请求到 base_url。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建一个新的上游客户端。
func NewClient(cfg config.UpstreamConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Do 发送请求并读取完整响应。非 2xx 不视为错误，由调用方决定如何转发。
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("创建上游请求失败: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用上游 %s %s 失败: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("读取上游响应失败(%s): %w", time.Since(start), err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
