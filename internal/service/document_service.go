package service

import (
	"context"
	"errors"
	"time"

	"stututor-go/internal/model"
	"stututor-go/internal/repository"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/storage"
)

const downloadURLExpiry = time.Hour

// DocumentService 定义了已上传文档的查询与加载接口。
type DocumentService interface {
	// Fetch 按文档 ID 加载元数据和内容，供会话绑定。
	Fetch(ctx context.Context, locator string) (*model.Document, error)
	List(ctx context.Context, ownerID uint, limit int) ([]model.DocumentRecord, error)
	Get(ctx context.Context, id string) (*model.DocumentRecord, error)
	DownloadURL(ctx context.Context, id string) (string, error)
}

type documentService struct {
	repo  repository.DocumentRepository
	store storage.ObjectStore
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(repo repository.DocumentRepository, store storage.ObjectStore) DocumentService {
	return &documentService{repo: repo, store: store}
}

func (s *documentService) Fetch(ctx context.Context, locator string) (*model.Document, error) {
	record, err := s.repo.FindByID(ctx, locator)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Get(ctx, record.StoragePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, apperr.NotFound("file of document %s not found", locator)
	}
	if err != nil {
		return nil, err
	}

	doc := record.ToDocument()
	doc.Data = data
	doc.Size = int64(len(data))
	return doc, nil
}

func (s *documentService) List(ctx context.Context, ownerID uint, limit int) ([]model.DocumentRecord, error) {
	return s.repo.List(ctx, ownerID, limit)
}

func (s *documentService) Get(ctx context.Context, id string) (*model.DocumentRecord, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *documentService) DownloadURL(ctx context.Context, id string) (string, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.store.PresignedURL(ctx, record.StoragePath, downloadURLExpiry)
}
