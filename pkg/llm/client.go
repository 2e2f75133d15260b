// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
	"stututor-go/internal/config"
)

// 消息角色。assistant 的回复在后端中对应 model 角色。
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part 是消息的一部分：文本或带 MIME 类型的内联二进制数据。
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Message 表示一条角色消息
type Message struct {
	Role  string
	Parts []Part
}

// TextMessage 创建只含文本的消息。
func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Request 是一次生成请求。
type Request struct {
	// Model 为空时使用配置中的默认模型。
	Model             string
	SystemInstruction string
	Messages          []Message
	// ResponseMIMEType 设为 application/json 时要求后端返回 JSON。
	ResponseMIMEType string
	Generation       *GenerationParams
}

// Client defines the interface for an LLM client.
type Client interface {
	// Generate 发送一次请求并返回回复文本。
	Generate(ctx context.Context, req *Request) (string, error)
}

// ErrEmptyResponse 表示后端返回了空回复。
var ErrEmptyResponse = errors.New("llm returned empty response")

type geminiClient struct {
	cfg    config.LLMConfig
	client *genai.Client
}

// NewClient 创建基于 Gemini API 的客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiClient{cfg: cfg, client: client}, nil
}

func (c *geminiClient) Generate(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, toContent(m))
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, c.buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("failed to call gemini api: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *geminiClient) buildConfig(req *Request) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{ResponseMIMEType: req.ResponseMIMEType}
	if req.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	// 传参优先，否则从全局配置注入（若非零值）
	gen := req.Generation
	if gen == nil {
		gen = &GenerationParams{}
		if c.cfg.Generation.Temperature != 0 {
			t := c.cfg.Generation.Temperature
			gen.Temperature = &t
		}
		if c.cfg.Generation.TopP != 0 {
			p := c.cfg.Generation.TopP
			gen.TopP = &p
		}
		if c.cfg.Generation.MaxTokens != 0 {
			m := c.cfg.Generation.MaxTokens
			gen.MaxTokens = &m
		}
	}
	if gen.Temperature != nil {
		gc.Temperature = float32Ptr(*gen.Temperature)
	}
	if gen.TopP != nil {
		gc.TopP = float32Ptr(*gen.TopP)
	}
	if gen.MaxTokens != nil {
		gc.MaxOutputTokens = int32(*gen.MaxTokens)
	}
	return gc
}

func toContent(m Message) *genai.Content {
	parts := make([]*genai.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if len(p.Data) > 0 {
			// SDK 负责 base64 编码
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	role := m.Role
	if role != RoleModel {
		role = RoleUser
	}
	return &genai.Content{Role: role, Parts: parts}
}

func float32Ptr(v float64) *float32 {
	f := float32(v)
	return &f
}
