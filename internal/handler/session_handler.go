package handler

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"stututor-go/internal/middleware"
	"stututor-go/internal/model"
	"stututor-go/internal/service"
	"stututor-go/internal/session"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/log"
)

// SessionHandler 负责会话的生命周期以及会话内的生成操作。
type SessionHandler struct {
	manager   *session.Manager
	uploads   service.UploadService
	documents service.DocumentService
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(manager *session.Manager, uploads service.UploadService, documents service.DocumentService) *SessionHandler {
	return &SessionHandler{manager: manager, uploads: uploads, documents: documents}
}

// BindDocumentRequest 是绑定远程文档的请求体。
type BindDocumentRequest struct {
	Locator   string `json:"locator" binding:"required"`
	TimeoutMs int    `json:"timeoutMs"`
}

// NotesRequest 是生成学习笔记的请求体。
type NotesRequest struct {
	Source    string `json:"source"`
	Topic     string `json:"topic"`
	Focus     string `json:"focus"`
	TimeoutMs int    `json:"timeoutMs"`
}

// QuizRequest 是生成测验的请求体。
type QuizRequest struct {
	Source       string `json:"source"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	NumQuestions int    `json:"numQuestions"`
	TimeoutMs    int    `json:"timeoutMs"`
}

// TurnRequest 是 JSON 形式的对话轮次请求体。
type TurnRequest struct {
	Text       string `json:"text"`
	DocumentID string `json:"documentId"`
	TimeoutMs  int    `json:"timeoutMs"`
}

// Open 创建一个新会话。
func (h *SessionHandler) Open(c *gin.Context) {
	coord := h.manager.Open()
	log.Infof("Session opened: %s, user: %d", coord.ID(), middleware.UserID(c))
	respondOK(c, "success", coord.Snapshot())
}

// Snapshot 返回会话当前状态。
func (h *SessionHandler) Snapshot(c *gin.Context) {
	coord, ok := h.session(c, "Snapshot")
	if !ok {
		return
	}
	respondOK(c, "success", coord.Snapshot())
}

// Close 关闭会话，进行中的生成会被取消。
func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.manager.Close(c.Param("id")); err != nil {
		respondError(c, "CloseSession", err)
		return
	}
	respondOK(c, "Session closed", nil)
}

// Cancel 取消进行中的生成。
func (h *SessionHandler) Cancel(c *gin.Context) {
	coord, ok := h.session(c, "Cancel")
	if !ok {
		return
	}
	canceled := coord.Cancel()
	respondOK(c, "success", gin.H{"canceled": canceled, "state": coord.State()})
}

// BindDocument 远程加载文档并绑定到会话。
func (h *SessionHandler) BindDocument(c *gin.Context) {
	coord, ok := h.session(c, "BindDocument")
	if !ok {
		return
	}
	var req BindDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "BindDocument", err, "无效的请求负载：locator 不能为空")
		return
	}

	doc, err := coord.OpenDocument(c.Request.Context(), req.Locator, callOptions(req.TimeoutMs)...)
	if err != nil {
		respondError(c, "BindDocument", err)
		return
	}
	respondOK(c, "Document bound", doc)
}

// GenerateNotes 生成学习笔记。
func (h *SessionHandler) GenerateNotes(c *gin.Context) {
	coord, ok := h.session(c, "GenerateNotes")
	if !ok {
		return
	}
	var req NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "GenerateNotes", err, "无效的请求负载")
		return
	}

	notes, err := coord.GenerateStudyNotes(c.Request.Context(), session.NotesRequest{
		Source: session.Source(req.Source),
		Topic:  req.Topic,
		Focus:  req.Focus,
	}, callOptions(req.TimeoutMs)...)
	if err != nil {
		respondError(c, "GenerateNotes", err)
		return
	}
	respondOK(c, "success", notes)
}

// GenerateQuiz 生成测验。
func (h *SessionHandler) GenerateQuiz(c *gin.Context) {
	coord, ok := h.session(c, "GenerateQuiz")
	if !ok {
		return
	}
	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "GenerateQuiz", err, "无效的请求负载")
		return
	}

	quiz, err := coord.GenerateQuiz(c.Request.Context(), session.QuizRequest{
		Source:       session.Source(req.Source),
		Topic:        req.Topic,
		Difficulty:   req.Difficulty,
		NumQuestions: req.NumQuestions,
	}, callOptions(req.TimeoutMs)...)
	if err != nil {
		respondError(c, "GenerateQuiz", err)
		return
	}
	respondOK(c, "success", quiz)
}

// SendTurn 发送一条用户消息。请求可以是 JSON（引用已上传的文档），
// 也可以是 multipart 表单（text、可选的 timeoutMs 与 file）。
func (h *SessionHandler) SendTurn(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.sendMultipartTurn(c)
		return
	}
	coord, ok := h.session(c, "SendTurn")
	if !ok {
		return
	}
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "SendTurn", err, "无效的请求负载")
		return
	}
	var doc *model.Document
	if req.DocumentID != "" {
		var err error
		if doc, err = h.documents.Fetch(c.Request.Context(), req.DocumentID); err != nil {
			respondError(c, "SendTurn", err)
			return
		}
	}

	result, err := coord.SendUserTurn(c.Request.Context(), c.Param("cid"), req.Text, doc, callOptions(req.TimeoutMs)...)
	if err != nil {
		respondError(c, "SendTurn", err)
		return
	}
	respondOK(c, "success", result)
}

// sendMultipartTurn 先上传附件再发送消息；消息发送失败时撤销这次上传。
func (h *SessionHandler) sendMultipartTurn(c *gin.Context) {
	coord, ok := h.session(c, "SendTurn")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	cid := c.Param("cid")

	text := c.PostForm("text")
	if strings.TrimSpace(text) == "" {
		respondError(c, "SendTurn", apperr.Validation("message must not be empty"))
		return
	}
	var timeoutMs int
	if raw := c.PostForm("timeoutMs"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, "SendTurn", apperr.Validation("timeoutMs must be a non-negative integer"))
			return
		}
		timeoutMs = n
	}

	// 会话忙或对话不存在时不上传
	if coord.State() != session.StateIdle {
		respondError(c, "SendTurn", apperr.New(apperr.KindBusy, "session is busy"))
		return
	}
	if _, err := coord.History(ctx, cid, 1); err != nil {
		respondError(c, "SendTurn", err)
		return
	}

	record, doc, err := h.uploadAttachment(c)
	if err != nil {
		respondError(c, "SendTurn", err)
		return
	}

	result, err := coord.SendUserTurn(ctx, cid, text, doc, callOptions(timeoutMs)...)
	if err != nil {
		if record != nil {
			if discardErr := h.uploads.Discard(context.WithoutCancel(ctx), record); discardErr != nil {
				log.Warnf("撤销上传失败: id=%s, err=%v", record.ID, discardErr)
			}
		}
		respondError(c, "SendTurn", err)
		return
	}
	respondOK(c, "success", result)
}

// uploadAttachment 上传表单中的文件，返回文档记录和携带内容的文档；没有文件时都为 nil。
func (h *SessionHandler) uploadAttachment(c *gin.Context) (*model.DocumentRecord, *model.Document, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, nil, nil
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, apperr.Validation("无法读取上传的文件")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, apperr.Validation("无法读取上传的文件")
	}
	record, err := h.uploads.UploadPDF(c.Request.Context(), service.UploadInput{
		OwnerID:      middleware.UserID(c),
		FileName:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Size:         header.Size,
		Content:      bytes.NewReader(data),
	})
	if err != nil {
		return nil, nil, err
	}
	doc := record.ToDocument()
	doc.Data = data
	return record, doc, nil
}

func (h *SessionHandler) session(c *gin.Context, op string) (*session.Coordinator, bool) {
	coord, err := h.manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, op, err)
		return nil, false
	}
	return coord, true
}
