package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"stututor-go/internal/service"
	"stututor-go/pkg/apperr"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// CreateConversationRequest 是新建对话的请求体，title 可选。
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// Create 新建一个空对话。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "CreateConversation", err, "无效的请求负载")
			return
		}
	}
	conv, err := h.service.Create(c.Request.Context(), req.Title)
	if err != nil {
		respondError(c, "CreateConversation", err)
		return
	}
	respondOK(c, "success", conv)
}

// List 返回按最近更新排序的对话列表。
func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, "ListConversations", err)
		return
	}
	respondOK(c, "success", convs)
}

// Get 返回对话及其完整消息历史。
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.service.Get(c.Request.Context(), c.Param("cid"))
	if err != nil {
		respondError(c, "GetConversation", err)
		return
	}
	respondOK(c, "success", conv)
}

// Messages 返回对话最近的消息，limit 由查询参数指定。
func (h *ConversationHandler) Messages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, "GetMessages", apperr.Validation("invalid limit %q", raw))
			return
		}
		limit = n
	}
	msgs, err := h.service.Messages(c.Request.Context(), c.Param("cid"), limit)
	if err != nil {
		respondError(c, "GetMessages", err)
		return
	}
	respondOK(c, "success", msgs)
}
