// Package bridge 把一次生成意图转换为对 AI 后端的单次请求，并把回复规整为类型化产物。
// 无状态，不重试。
package bridge

import (
	"context"
	"errors"
	"time"

	"stututor-go/internal/model"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/llm"
	"stututor-go/pkg/log"
)

// Intent 是生成意图。
type Intent string

const (
	IntentChatTurn               Intent = "chatTurn"
	IntentStudyNotesFromTopic    Intent = "studyNotesFromTopic"
	IntentStudyNotesFromDocument Intent = "studyNotesFromDocument"
	IntentQuizFromDocument       Intent = "quizFromDocument"
	IntentQuizFromTopic          Intent = "quizFromTopic"
)

// 测验默认参数。
const (
	DefaultDifficulty   = "Easy"
	DefaultNumQuestions = 5
	MaxNumQuestions     = 50
)

// Call 是一次生成调用的输入。
type Call struct {
	Intent   Intent
	Document *model.Document
	// History 只用于 chatTurn，最新的在最后。
	History []model.Message
	Message string

	Topic        string
	Focus        string
	Difficulty   string
	NumQuestions int
}

// Result 是规整后的回复，按意图只填充其中一个字段。
type Result struct {
	Intent Intent
	Reply  string
	Notes  *model.StudyNotes
	Quiz   *model.Quiz
}

// Models 为不同意图指定模型，为空时使用客户端默认模型。
type Models struct {
	Chat  string
	Notes string
	Quiz  string
}

// Bridge 定义了产物生成的接口。
type Bridge interface {
	Generate(ctx context.Context, call Call) (*Result, error)
}

type bridge struct {
	client llm.Client
	models Models
}

// New 创建一个新的 Bridge 实例。
func New(client llm.Client, models Models) Bridge {
	return &bridge{client: client, models: models}
}

func (b *bridge) Generate(ctx context.Context, call Call) (*Result, error) {
	req, err := b.buildRequest(&call)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := b.client.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return nil, apperr.Malformed(err, "empty reply for %s", call.Intent)
		}
		classified := apperr.FromContext(ctx, err, string(call.Intent))
		log.Warnw("generation failed", "intent", call.Intent, "kind", apperr.KindOf(classified), "elapsed", time.Since(start), "error", err)
		return nil, classified
	}
	log.Debugw("generation finished", "intent", call.Intent, "model", req.Model, "elapsed", time.Since(start))

	return parseReply(&call, text)
}
