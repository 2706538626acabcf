package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskflow/pkg/circuitbreaker"
	"taskflow/pkg/config"
	"taskflow/pkg/metrics"
)

const serviceKeyHeader = "X-Service-Key"

var (
	ErrNotConfigured = errors.New("ai service not configured")
	ErrTimeout       = errors.New("ai service timed out")
)

// UpstreamError AI 服务返回的非 2xx 响应
type UpstreamError struct {
	Status  int
	Message string
	// Body 解析后的响应体，CSV 接口需要读取其中的 error 字段
	Body map[string]any
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("ai upstream %d: %s", e.Status, e.Message)
}

// Client 调用外部 AI 微服务，带超时和熔断
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cbCfg := circuitbreaker.DefaultConfig("ai-service")
	// 4xx 是调用方的问题，不计入熔断
	cbCfg.IsFailure = func(err error) bool {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return upstream.Status >= http.StatusInternalServerError
		}
		return true
	}
	cbCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.NewCircuitBreaker(cbCfg),
		logger:     logger,
	}
}

func (c *Client) Configured() bool {
	return c.baseURL != "" && c.serviceKey != ""
}

// PostJSON POST <base>/<endpoint>/，body 为 JSON
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, endpoint, "application/json", func() io.Reader { return bytes.NewReader(body) })
}

// PostFile 以 multipart/form-data 上传单个文件
func (c *Client) PostFile(ctx context.Context, endpoint, field, fileName string, content []byte) (map[string]any, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	form := buf.Bytes()
	return c.do(ctx, endpoint, w.FormDataContentType(), func() io.Reader { return bytes.NewReader(form) })
}

func (c *Client) do(ctx context.Context, endpoint, contentType string, body func() io.Reader) (map[string]any, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordAICallLatency(endpoint, status, time.Since(start))
	}()

	var data map[string]any
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint+"/", body())
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set(serviceKeyHeader, c.serviceKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isTimeout(err) {
				return ErrTimeout
			}
			return err
		}
		defer resp.Body.Close()
		status = strconv.Itoa(resp.StatusCode)

		parsed := decodeBody(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &UpstreamError{
				Status:  resp.StatusCode,
				Message: upstreamMessage(parsed, resp),
				Body:    parsed,
			}
		}
		data = parsed
		if data == nil {
			data = map[string]any{}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
			status = "circuit_open"
		}
		c.logger.Warn("AI service call failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, err
	}
	return data, nil
}

// decodeBody 非 JSON 响应返回 nil，数字保持原样
func decodeBody(r io.Reader) map[string]any {
	dec := json.NewDecoder(io.LimitReader(r, 10<<20))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

// upstreamMessage 依次取 error、message，最后用状态文本
func upstreamMessage(body map[string]any, resp *http.Response) string {
	for _, key := range []string{"error", "message"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
