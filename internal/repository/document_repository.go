package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"stututor-go/internal/model"
	"stututor-go/pkg/apperr"
)

// DocumentRepository 定义了已上传 PDF 元数据的持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, record *model.DocumentRecord) error
	FindByID(ctx context.Context, id string) (*model.DocumentRecord, error)
	// List 返回 owner 的文档，最新上传的在前；ownerID 为 0 时返回全部。
	List(ctx context.Context, ownerID uint, limit int) ([]model.DocumentRecord, error)
	UpdateMetadata(ctx context.Context, id string, meta model.PDFMetadata) error
	UpdateStatus(ctx context.Context, id string, status int) error
	Delete(ctx context.Context, id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, record *model.DocumentRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("保存文档记录失败: %w", err)
	}
	return nil
}

func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("document %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询文档记录失败: %w", err)
	}
	return &record, nil
}

func (r *documentRepository) List(ctx context.Context, ownerID uint, limit int) ([]model.DocumentRecord, error) {
	var records []model.DocumentRecord
	q := r.db.WithContext(ctx).Order("created_at desc")
	if ownerID != 0 {
		q = q.Where("owner_id = ?", ownerID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}
	return records, nil
}

// UpdateMetadata 写入提取出的元数据并把状态置为已处理。
func (r *documentRepository) UpdateMetadata(ctx context.Context, id string, meta model.PDFMetadata) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&model.DocumentRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"page_count":   meta.PageCount,
		"title":        meta.Title,
		"author":       meta.Author,
		"status":       model.DocumentStatusProcessed,
		"processed_at": &now,
	}).Error
	if err != nil {
		return fmt.Errorf("更新文档元数据失败: %w", err)
	}
	return nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status int) error {
	return r.db.WithContext(ctx).Model(&model.DocumentRecord{}).Where("id = ?", id).Update("status", status).Error
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.DocumentRecord{}).Error; err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	return nil
}
