// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask 是上传完成后的 PDF 元数据提取任务。
type DocumentProcessingTask struct {
	DocumentID  string `json:"document_id"`
	StoragePath string `json:"storage_path"`
	FileName    string `json:"file_name"`
	OwnerID     uint   `json:"owner_id"`
}
