package model

import "time"

// MIMETypePDF 是唯一允许上传和附加的文档类型。
const MIMETypePDF = "application/pdf"

// PDFMetadata 是从 PDF 中提取的可选元数据。
type PDFMetadata struct {
	PageCount int    `json:"pageCount"`
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
}

// Document 是会话当前聚焦的 PDF。绑定时整体替换，不做局部修改。
type Document struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	MIMEType    string       `json:"mimeType"`
	Size        int64        `json:"size"`
	StoragePath string       `json:"storagePath,omitempty"`
	URL         string       `json:"url,omitempty"`
	Metadata    *PDFMetadata `json:"metadata,omitempty"`
	// Data 是文档的二进制内容；只知道定位符时为空。
	Data []byte `json:"-"`
}

// HasPayload 判断文档是否已携带二进制内容。
func (d *Document) HasPayload() bool {
	return d != nil && len(d.Data) > 0
}

// Attachment 生成描述该文档的消息附件。
func (d *Document) Attachment() *FileAttachment {
	if d == nil {
		return nil
	}
	return &FileAttachment{
		Name:       d.Name,
		Size:       d.Size,
		Type:       d.MIMEType,
		URL:        d.URL,
		DocumentID: d.ID,
	}
}

// 文档处理状态。
const (
	DocumentStatusUploaded  = 0
	DocumentStatusProcessed = 1
	DocumentStatusFailed    = 2
)

// DocumentRecord 定义了 documents 表的 ORM 模型，记录已上传 PDF 的元数据。
type DocumentRecord struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID     uint       `gorm:"index;not null" json:"ownerId"`
	FileName    string     `gorm:"type:varchar(255);not null" json:"fileName"`
	StoragePath string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"storagePath"`
	PublicURL   string     `gorm:"type:varchar(512)" json:"publicUrl"`
	MIMEType    string     `gorm:"type:varchar(100);not null" json:"mimeType"`
	FileSize    int64      `gorm:"not null" json:"fileSize"`
	PageCount   int        `gorm:"not null;default:0" json:"pageCount"`
	Title       string     `gorm:"type:varchar(255)" json:"title"`
	Author      string     `gorm:"type:varchar(255)" json:"author"`
	Status      int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: uploaded, 1: processed, 2: failed
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt *time.Time `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentRecord) TableName() string {
	return "documents"
}

// ToDocument 转换为会话使用的 Document（不含二进制内容）。
func (r *DocumentRecord) ToDocument() *Document {
	doc := &Document{
		ID:          r.ID,
		Name:        r.FileName,
		MIMEType:    r.MIMEType,
		Size:        r.FileSize,
		StoragePath: r.StoragePath,
		URL:         r.PublicURL,
	}
	if r.Status == DocumentStatusProcessed {
		doc.Metadata = &PDFMetadata{PageCount: r.PageCount, Title: r.Title, Author: r.Author}
	}
	return doc
}
