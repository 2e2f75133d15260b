package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// BucketInfo 描述一个存储桶及其可见性。
type BucketInfo struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// Report 是存储检查的结果。
type Report struct {
	Buckets        []BucketInfo `json:"buckets"`
	ExpectedBucket string       `json:"expectedBucket"`
	ExpectedExists bool         `json:"expectedExists"`
	Objects        []ObjectInfo `json:"objects"`
}

// Inspect 列出所有存储桶及其可见性，检查预期存储桶是否存在，并列出至多 sample 个对象。
// 只读，不修改任何存储状态。
func (s *MinioStore) Inspect(ctx context.Context, sample int) (*Report, error) {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("列出存储桶失败: %w", err)
	}

	report := &Report{ExpectedBucket: s.bucket}
	for _, b := range buckets {
		policy, err := s.client.GetBucketPolicy(ctx, b.Name)
		// 未设置策略时 MinIO 返回空串或错误，均视为私有
		public := err == nil && strings.Contains(policy, "s3:GetObject")
		report.Buckets = append(report.Buckets, BucketInfo{Name: b.Name, Public: public})
		if b.Name == s.bucket {
			report.ExpectedExists = true
		}
	}
	if !report.ExpectedExists || sample <= 0 {
		return report, nil
	}

	// 提前退出时取消上下文，结束 ListObjects 的后台协程
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Recursive: true, MaxKeys: sample}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("列出对象失败: %w", obj.Err)
		}
		report.Objects = append(report.Objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
		if len(report.Objects) >= sample {
			break
		}
	}
	return report, nil
}
