// Package pdfmeta 从 PDF 中读取页数、标题和作者。
package pdfmeta

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Metadata 是提取出的 PDF 元数据。
type Metadata struct {
	PageCount int
	Title     string
	Author    string
}

var ErrEmpty = errors.New("pdf content is empty")

// Extract 解析 PDF 并返回元数据。Info 字典缺失时只返回页数。
func Extract(data []byte) (meta *Metadata, err error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	// 该库在遇到损坏的文件时可能 panic
	defer func() {
		if r := recover(); r != nil {
			meta, err = nil, fmt.Errorf("解析 PDF 失败: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("解析 PDF 失败: %w", err)
	}

	info := reader.Trailer().Key("Info")
	return &Metadata{
		PageCount: reader.NumPage(),
		Title:     strings.TrimSpace(info.Key("Title").Text()),
		Author:    strings.TrimSpace(info.Key("Author").Text()),
	}, nil
}
