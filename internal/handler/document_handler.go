package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"stututor-go/internal/middleware"
	"stututor-go/internal/service"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/log"
)

// defaultListLimit 是文档列表的默认条数。
const defaultListLimit = 50

// DocumentHandler 负责处理 PDF 的上传、列表和下载。
type DocumentHandler struct {
	uploads   service.UploadService
	documents service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler。
func NewDocumentHandler(uploads service.UploadService, documents service.DocumentService) *DocumentHandler {
	return &DocumentHandler{uploads: uploads, documents: documents}
}

// Upload 处理 multipart 形式的 PDF 上传。
func (h *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "UploadDocument", err, "No file provided")
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, "UploadDocument", err)
		return
	}
	defer f.Close()

	record, err := h.uploads.UploadPDF(c.Request.Context(), service.UploadInput{
		OwnerID:      middleware.UserID(c),
		FileName:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Size:         header.Size,
		Content:      f,
	})
	if err != nil {
		respondError(c, "UploadDocument", err)
		return
	}
	log.Infof("UploadDocument: stored %s as %s", header.Filename, record.StoragePath)
	respondOK(c, "File uploaded successfully", record)
}

// List 返回当前用户最近上传的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, "ListDocuments", apperr.Validation("invalid limit %q", raw))
			return
		}
		limit = n
	}
	records, err := h.documents.List(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, "ListDocuments", err)
		return
	}
	respondOK(c, "success", records)
}

// Get 返回单个文档的元数据。
func (h *DocumentHandler) Get(c *gin.Context) {
	record, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetDocument", err)
		return
	}
	respondOK(c, "success", record)
}

// Download 返回文档的临时下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	url, err := h.documents.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "DownloadDocument", err)
		return
	}
	respondOK(c, "success", gin.H{"url": url})
}
