package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"stututor-go/internal/bridge"
	"stututor-go/internal/model"
	"stututor-go/internal/repository"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/log"
)

// State 是会话的生成状态。
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
)

// Source 指定笔记或测验的来源。
type Source string

const (
	SourceTopic    Source = "topic"
	SourceDocument Source = "document"
)

// storeTimeout 限制生成成功后写入对话存储的时间。写入发生在 finish 的锁内，
// 期间 Snapshot、Cancel 等调用会等待。
const storeTimeout = 2 * time.Second

// Options 是协调器的配置。
type Options struct {
	CallTimeout  time.Duration
	HistoryLimit int
}

// CallOption 调整单次调用。
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout 指定本次调用的超时时间。
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NotesRequest 是生成学习笔记的参数。
type NotesRequest struct {
	Source Source
	Topic  string
	Focus  string
}

// QuizRequest 是生成测验的参数。
type QuizRequest struct {
	Source       Source
	Topic        string
	Difficulty   string
	NumQuestions int
}

// TurnResult 是一次成功的对话轮次。
type TurnResult struct {
	Conversation *model.Conversation `json:"conversation"`
	UserMessage  model.Message       `json:"userMessage"`
	Reply        model.Message       `json:"reply"`
}

// Snapshot 是会话状态的只读快照。
type Snapshot struct {
	SessionID       string               `json:"sessionId"`
	State           State                `json:"state"`
	Operation       string               `json:"operation,omitempty"`
	Document        *model.Document      `json:"document,omitempty"`
	DocumentVersion uint64               `json:"documentVersion"`
	Fetch           FetchStatus          `json:"fetch"`
	Notes           *model.NotesArtifact `json:"notes,omitempty"`
	Quiz            *model.QuizArtifact  `json:"quiz,omitempty"`
}

type notesEntry struct {
	notes      model.StudyNotes
	sourceID   string
	docVersion uint64
	at         time.Time
}

type quizEntry struct {
	quiz       model.Quiz
	sourceID   string
	docVersion uint64
	at         time.Time
}

// Coordinator 是单个会话的状态协调器。同一时刻最多只有一个生成调用。
type Coordinator struct {
	id     string
	store  repository.ConversationStore
	bridge bridge.Bridge
	docs   *DocumentContext
	opts   Options
	events EventSink

	mu     sync.Mutex
	state  State
	op     string
	token  uint64
	cancel context.CancelFunc
	closed bool
	notes  *notesEntry
	quiz   *quizEntry
}

// NewCoordinator 创建一个空闲的会话协调器。events 可以为 nil。
func NewCoordinator(id string, store repository.ConversationStore, br bridge.Bridge, fetcher DocumentFetcher, opts Options, events EventSink) *Coordinator {
	if events == nil {
		events = noopSink{}
	}
	return &Coordinator{
		id:     id,
		store:  store,
		bridge: br,
		docs:   NewDocumentContext(fetcher),
		opts:   opts,
		events: events,
		state:  StateIdle,
	}
}

// ID 返回会话 ID。
func (c *Coordinator) ID() string {
	return c.id
}

// State 返回当前生成状态。
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// begin 进入 Generating 状态并返回带超时的调用上下文和令牌。
func (c *Coordinator) begin(ctx context.Context, op string, opts []CallOption) (context.Context, uint64, error) {
	co := callOptions{timeout: c.opts.CallTimeout}
	for _, o := range opts {
		o(&co)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, 0, apperr.NotFound("session %s is closed", c.id)
	}
	if c.state == StateGenerating {
		return nil, 0, apperr.New(apperr.KindBusy, "session is busy with %s", c.op)
	}

	var callCtx context.Context
	var cancel context.CancelFunc
	if co.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, co.timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	c.token++
	c.state = StateGenerating
	c.op = op
	c.cancel = cancel
	c.publishLocked(EventState, op)
	return callCtx, c.token, nil
}

// finish 结束令牌对应的调用。令牌已过期时结果被丢弃并返回 Canceled；
// 否则在锁内执行 commit，然后回到 Idle。
func (c *Coordinator) finish(token uint64, callErr error, commit func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.token {
		log.Infow("discarding result of canceled call", "session", c.id, "token", token)
		return apperr.Wrap(apperr.KindCanceled, callErr, "call was canceled and its result discarded")
	}

	err := callErr
	if err == nil && commit != nil {
		err = commit()
	}
	c.cancel()
	c.cancel = nil
	c.state = StateIdle
	op := c.op
	c.op = ""
	if err != nil {
		c.publishLocked(EventError, map[string]string{"operation": op, "kind": string(apperr.KindOf(err)), "message": apperr.MessageOf(err)})
	}
	c.publishLocked(EventState, nil)
	return err
}

// Cancel 取消进行中的调用并立即回到 Idle，迟到的结果会被丢弃。
// 没有进行中的调用时返回 false。
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked()
}

func (c *Coordinator) cancelLocked() bool {
	if c.state != StateGenerating {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.token++
	c.state = StateIdle
	c.op = ""
	c.publishLocked(EventState, nil)
	return true
}

// Close 取消进行中的调用并拒绝后续生成。可重复调用。
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelLocked()
	c.closed = true
	c.publishLocked(EventClosed, nil)
}

// CreateConversation 创建一个新的空对话。
func (c *Coordinator) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	return c.store.CreateConversation(ctx, strings.TrimSpace(title))
}

// History 返回对话最近 limit 条消息。
func (c *Coordinator) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	return c.store.History(ctx, conversationID, limit)
}

// BindDocument 替换当前文档。由旧文档生成的产物随之过期。
func (c *Coordinator) BindDocument(doc *model.Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	c.docs.Bind(doc)
	c.publish(EventDocument, doc)
	return nil
}

// CurrentDocument 返回当前文档。
func (c *Coordinator) CurrentDocument() *model.Document {
	return c.docs.Current()
}

// OpenDocument 远程加载文档并在成功时绑定。
func (c *Coordinator) OpenDocument(ctx context.Context, locator string, opts ...CallOption) (*model.Document, error) {
	co := callOptions{timeout: c.opts.CallTimeout}
	for _, o := range opts {
		o(&co)
	}
	if co.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, co.timeout)
		defer cancel()
	}

	doc, err := c.docs.FetchRemote(ctx, locator)
	if err != nil {
		return nil, err
	}
	c.publish(EventDocument, doc)
	return doc, nil
}

// SendUserTurn 以当前文档和最近的历史为上下文发送一条用户消息。
// 成功时依次追加用户消息和助手回复；attachment 仅在成功后成为当前文档。
func (c *Coordinator) SendUserTurn(ctx context.Context, conversationID, text string, attachment *model.Document, opts ...CallOption) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message must not be empty")
	}
	if attachment != nil {
		if err := validateDocument(attachment); err != nil {
			return nil, err
		}
	}

	callCtx, token, err := c.begin(ctx, "chat", opts)
	if err != nil {
		return nil, err
	}

	var result *TurnResult
	reply, doc, err := c.chat(callCtx, conversationID, text, attachment)
	err = c.finish(token, err, func() error {
		now := time.Now()
		userMsg := model.Message{ID: uuid.NewString(), Role: model.RoleUser, Content: text, Timestamp: now}
		if attachment != nil {
			userMsg.FileAttachment = doc.Attachment()
		}
		assistantMsg := model.Message{ID: uuid.NewString(), Role: model.RoleAssistant, Content: reply.Reply, Timestamp: now}

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()
		conv, err := c.store.AppendMessage(sctx, conversationID, userMsg, assistantMsg)
		if err != nil {
			return apperr.FromContext(sctx, err, "save messages")
		}
		// 重新附带当前文档不算新的绑定，已有产物保持有效
		if attachment != nil && !sameDocument(c.docs.Current(), doc) {
			c.docs.Bind(doc)
			c.publishLocked(EventDocument, doc)
		}
		result = &TurnResult{Conversation: conv, UserMessage: userMsg, Reply: assistantMsg}
		c.publishLocked(EventMessages, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) chat(ctx context.Context, conversationID, text string, attachment *model.Document) (*bridge.Result, *model.Document, error) {
	history, err := c.store.History(ctx, conversationID, c.opts.HistoryLimit)
	if err != nil {
		return nil, nil, apperr.FromContext(ctx, err, "load history")
	}

	var doc *model.Document
	if attachment != nil {
		doc, err = c.docs.resolve(ctx, attachment)
	} else {
		doc, _, err = c.docs.withPayload(ctx)
	}
	if err != nil {
		return nil, nil, err
	}

	res, err := c.bridge.Generate(ctx, bridge.Call{
		Intent:   bridge.IntentChatTurn,
		Document: doc,
		History:  history,
		Message:  text,
	})
	if err != nil {
		return nil, nil, err
	}
	return res, doc, nil
}

func sameDocument(current, doc *model.Document) bool {
	return current != nil && doc != nil && doc.ID != "" && current.ID == doc.ID
}

// GenerateStudyNotes 生成学习笔记并替换当前笔记。
func (c *Coordinator) GenerateStudyNotes(ctx context.Context, req NotesRequest, opts ...CallOption) (*model.NotesArtifact, error) {
	intent := bridge.IntentStudyNotesFromTopic
	switch req.Source {
	case SourceTopic:
	case SourceDocument:
		intent = bridge.IntentStudyNotesFromDocument
	default:
		return nil, apperr.Validation("unknown notes source %q", req.Source)
	}

	callCtx, token, err := c.begin(ctx, "notes", opts)
	if err != nil {
		return nil, err
	}

	doc, version, res, err := c.generate(callCtx, req.Source, bridge.Call{Intent: intent, Topic: req.Topic, Focus: req.Focus})
	var out *model.NotesArtifact
	err = c.finish(token, err, func() error {
		entry := &notesEntry{notes: *res.Notes, docVersion: version, at: time.Now()}
		if doc != nil {
			entry.sourceID = doc.ID
		}
		c.notes = entry
		out = c.notesArtifactLocked()
		c.publishLocked(EventNotes, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateQuiz 生成测验并替换当前测验。
func (c *Coordinator) GenerateQuiz(ctx context.Context, req QuizRequest, opts ...CallOption) (*model.QuizArtifact, error) {
	intent := bridge.IntentQuizFromTopic
	switch req.Source {
	case SourceTopic:
	case SourceDocument:
		intent = bridge.IntentQuizFromDocument
	default:
		return nil, apperr.Validation("unknown quiz source %q", req.Source)
	}

	callCtx, token, err := c.begin(ctx, "quiz", opts)
	if err != nil {
		return nil, err
	}

	doc, version, res, err := c.generate(callCtx, req.Source, bridge.Call{
		Intent:       intent,
		Topic:        req.Topic,
		Difficulty:   req.Difficulty,
		NumQuestions: req.NumQuestions,
	})
	var out *model.QuizArtifact
	err = c.finish(token, err, func() error {
		entry := &quizEntry{quiz: *res.Quiz, docVersion: version, at: time.Now()}
		if doc != nil {
			entry.sourceID = doc.ID
		}
		c.quiz = entry
		out = c.quizArtifactLocked()
		c.publishLocked(EventQuiz, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// generate 为文档来源的调用补全文档内容，然后发起生成。
func (c *Coordinator) generate(ctx context.Context, source Source, call bridge.Call) (*model.Document, uint64, *bridge.Result, error) {
	var doc *model.Document
	var version uint64
	if source == SourceDocument {
		var err error
		doc, version, err = c.docs.withPayload(ctx)
		if err != nil {
			return nil, 0, nil, err
		}
		if doc == nil {
			return nil, 0, nil, apperr.Validation("no document is loaded")
		}
		call.Document = doc
	}
	res, err := c.bridge.Generate(ctx, call)
	if err != nil {
		return nil, 0, nil, err
	}
	return doc, version, res, nil
}

// Snapshot 返回会话状态快照。
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SessionID:       c.id,
		State:           c.state,
		Operation:       c.op,
		Document:        c.docs.Current(),
		DocumentVersion: c.docs.Version(),
		Fetch:           c.docs.FetchStatus(),
		Notes:           c.notesArtifactLocked(),
		Quiz:            c.quizArtifactLocked(),
	}
}

// Notes 返回当前学习笔记，可能为 nil。
func (c *Coordinator) Notes() *model.NotesArtifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notesArtifactLocked()
}

// Quiz 返回当前测验，可能为 nil。
func (c *Coordinator) Quiz() *model.QuizArtifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quizArtifactLocked()
}

func (c *Coordinator) notesArtifactLocked() *model.NotesArtifact {
	if c.notes == nil {
		return nil
	}
	return &model.NotesArtifact{
		Notes:        c.notes.notes,
		ArtifactInfo: c.artifactInfo(c.notes.sourceID, c.notes.docVersion, c.notes.at),
	}
}

func (c *Coordinator) quizArtifactLocked() *model.QuizArtifact {
	if c.quiz == nil {
		return nil
	}
	return &model.QuizArtifact{
		Quiz:         c.quiz.quiz,
		ArtifactInfo: c.artifactInfo(c.quiz.sourceID, c.quiz.docVersion, c.quiz.at),
	}
}

// artifactInfo 计算产物来源；文档产物在绑定版本变化后即为过期。
func (c *Coordinator) artifactInfo(sourceID string, version uint64, at time.Time) model.ArtifactInfo {
	return model.ArtifactInfo{
		SourceDocumentID: sourceID,
		GeneratedAt:      at,
		Stale:            sourceID != "" && version != c.docs.Version(),
	}
}

func (c *Coordinator) publish(typ string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(typ, payload)
}

func (c *Coordinator) publishLocked(typ string, payload interface{}) {
	c.events.Publish(Event{Type: typ, SessionID: c.id, State: c.state, Payload: payload, At: time.Now()})
}

// validateDocument 检查声明的类型，有内容时再按内容嗅探。
func validateDocument(doc *model.Document) error {
	if doc == nil {
		return apperr.Validation("document must not be nil")
	}
	if doc.MIMEType != model.MIMETypePDF {
		return apperr.Validation("only PDF files are allowed, got %q", doc.MIMEType)
	}
	if doc.HasPayload() && !mimetype.Detect(doc.Data).Is(model.MIMETypePDF) {
		return apperr.Validation("file content of %q is not a PDF", doc.Name)
	}
	return nil
}
