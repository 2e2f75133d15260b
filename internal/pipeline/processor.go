// Package pipeline 定义了文档上传后的异步处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"stututor-go/internal/model"
	"stututor-go/internal/repository"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/log"
	"stututor-go/pkg/pdfmeta"
	"stututor-go/pkg/storage"
	"stututor-go/pkg/tasks"
)

// Processor 从对象存储读取 PDF，提取元数据并写回文档记录。
type Processor struct {
	store storage.ObjectStore
	repo  repository.DocumentRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(store storage.ObjectStore, repo repository.DocumentRepository) *Processor {
	return &Processor{store: store, repo: repo}
}

// Process 处理一个文档任务。记录已被删除时跳过；文件本身无法解析时记录为失败，不再重试。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] 开始处理文档, ID: %s, Path: %s", task.DocumentID, task.StoragePath)

	if _, err := p.repo.FindByID(ctx, task.DocumentID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Infof("[Processor] 文档已被删除，跳过, ID: %s", task.DocumentID)
			return nil
		}
		return err
	}

	data, err := p.store.Get(ctx, task.StoragePath)
	if err != nil {
		return fmt.Errorf("从对象存储读取文件失败: %w", err)
	}

	meta, err := pdfmeta.Extract(data)
	if err != nil {
		log.Warnf("[Processor] 解析 PDF 失败, ID: %s, Error: %v", task.DocumentID, err)
		if err := p.repo.UpdateStatus(ctx, task.DocumentID, model.DocumentStatusFailed); err != nil {
			return fmt.Errorf("更新文档状态失败: %w", err)
		}
		return nil
	}

	if err := p.repo.UpdateMetadata(ctx, task.DocumentID, model.PDFMetadata{
		PageCount: meta.PageCount,
		Title:     meta.Title,
		Author:    meta.Author,
	}); err != nil {
		return err
	}
	log.Infof("[Processor] 文档处理完成, ID: %s, 页数: %d", task.DocumentID, meta.PageCount)
	return nil
}
