// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"stututor-go/internal/model"
	"stututor-go/internal/repository"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/log"
	"stututor-go/pkg/storage"
	"stututor-go/pkg/tasks"
)

// DefaultMaxUploadBytes 是 PDF 的默认大小上限。
const DefaultMaxUploadBytes = 10 << 20

// TaskPublisher 发布文档处理任务。
type TaskPublisher interface {
	Publish(ctx context.Context, task tasks.DocumentProcessingTask) error
}

// UploadInput 是一次上传的参数。
type UploadInput struct {
	OwnerID  uint
	FileName string
	// DeclaredType 是客户端声明的 Content-Type。
	DeclaredType string
	Size         int64
	Content      io.Reader
}

// UploadService 定义了 PDF 上传的接口。
type UploadService interface {
	// UploadPDF 校验并存储 PDF。类型或大小不合法时在任何存储调用之前返回 ValidationError。
	UploadPDF(ctx context.Context, in UploadInput) (*model.DocumentRecord, error)
	// Discard 撤销一次上传：先删除记录，再删除对象。
	Discard(ctx context.Context, record *model.DocumentRecord) error
}

type uploadService struct {
	store     storage.ObjectStore
	repo      repository.DocumentRepository
	publisher TaskPublisher
	maxBytes  int64
	now       func() time.Time
}

// NewUploadService 创建一个新的 UploadService 实例。publisher 可以为 nil。
func NewUploadService(store storage.ObjectStore, repo repository.DocumentRepository, publisher TaskPublisher, maxBytes int64) UploadService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &uploadService{store: store, repo: repo, publisher: publisher, maxBytes: maxBytes, now: time.Now}
}

func (s *uploadService) UploadPDF(ctx context.Context, in UploadInput) (*model.DocumentRecord, error) {
	declared := strings.TrimSpace(strings.Split(in.DeclaredType, ";")[0])
	if declared != model.MIMETypePDF {
		return nil, apperr.Validation("Only PDF files are allowed")
	}
	if in.Size > s.maxBytes {
		return nil, apperr.Validation("file size exceeds %d MB limit", s.maxBytes>>20)
	}
	if in.Content == nil {
		return nil, apperr.Validation("no file uploaded")
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apperr.Validation("file size exceeds %d MB limit", s.maxBytes>>20)
	}
	if detected := mimetype.Detect(data); !detected.Is(model.MIMETypePDF) {
		return nil, apperr.Validation("file content is %s, only PDF files are allowed", detected.String())
	}

	key := s.objectKey()
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), model.MIMETypePDF); err != nil {
		return nil, apperr.Upstream(err, "failed to upload file")
	}

	record := &model.DocumentRecord{
		ID:          uuid.NewString(),
		OwnerID:     in.OwnerID,
		FileName:    in.FileName,
		StoragePath: key,
		PublicURL:   s.store.PublicURL(key),
		MIMEType:    model.MIMETypePDF,
		FileSize:    int64(len(data)),
		Status:      model.DocumentStatusUploaded,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	log.Infof("PDF 上传成功: id=%s, path=%s, size=%d", record.ID, key, record.FileSize)

	if s.publisher != nil {
		task := tasks.DocumentProcessingTask{DocumentID: record.ID, StoragePath: key, FileName: record.FileName, OwnerID: record.OwnerID}
		// 元数据提取失败不影响上传结果
		if err := s.publisher.Publish(ctx, task); err != nil {
			log.Warnf("发送文档处理任务失败: id=%s, err=%v", record.ID, err)
		}
	}
	return record, nil
}

func (s *uploadService) Discard(ctx context.Context, record *model.DocumentRecord) error {
	if err := s.repo.Delete(ctx, record.ID); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, record.StoragePath); err != nil {
		return apperr.Upstream(err, "failed to remove file")
	}
	log.Infof("已撤销上传: id=%s, path=%s", record.ID, record.StoragePath)
	return nil
}

// objectKey 生成 pdfs/<unix-ms>_<random>.pdf 形式的对象路径。
func (s *uploadService) objectKey() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("pdfs/%d_%s.pdf", s.now().UnixMilli(), suffix)
}
