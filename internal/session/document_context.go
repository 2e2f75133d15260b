// Package session 实现了辅导会话的状态协调：文档上下文、生成状态机和产物。
package session

import (
	"context"
	"sync"

	"stututor-go/internal/model"
	"stututor-go/pkg/apperr"
)

// DocumentFetcher 根据定位符（文档 ID）加载文档及其内容。
type DocumentFetcher interface {
	Fetch(ctx context.Context, locator string) (*model.Document, error)
}

// FetchPhase 是远程加载的阶段。
type FetchPhase string

const (
	FetchIdle    FetchPhase = "idle"
	FetchPending FetchPhase = "pending"
	FetchReady   FetchPhase = "ready"
	FetchFailed  FetchPhase = "failed"
)

// FetchStatus 是最近一次远程加载的状态。
type FetchStatus struct {
	Phase    FetchPhase      `json:"phase"`
	Locator  string          `json:"locator,omitempty"`
	Document *model.Document `json:"document,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// DocumentContext 保存会话当前聚焦的文档。每次绑定都会使 Version 加一。
type DocumentContext struct {
	fetcher DocumentFetcher

	mu          sync.Mutex
	current     *model.Document
	version     uint64
	fetchGen    uint64
	fetchCancel context.CancelFunc
	status      FetchStatus
}

// NewDocumentContext 创建一个空的文档上下文。
func NewDocumentContext(fetcher DocumentFetcher) *DocumentContext {
	return &DocumentContext{fetcher: fetcher, status: FetchStatus{Phase: FetchIdle}}
}

// Bind 无条件替换当前文档，并取消正在进行的远程加载。返回新的版本号。
func (d *DocumentContext) Bind(doc *model.Document) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fetchCancel != nil {
		d.fetchCancel()
		d.fetchCancel = nil
		d.fetchGen++
		d.status = FetchStatus{Phase: FetchFailed, Locator: d.status.Locator, Reason: "superseded by bind"}
	}
	return d.bindLocked(doc)
}

func (d *DocumentContext) bindLocked(doc *model.Document) uint64 {
	d.current = doc
	d.version++
	return d.version
}

// Current 返回当前文档，未绑定时为 nil。
func (d *DocumentContext) Current() *model.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Version 返回当前绑定的版本号，从未绑定时为 0。
func (d *DocumentContext) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// FetchStatus 返回最近一次远程加载的状态。
func (d *DocumentContext) FetchStatus() FetchStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// FetchRemote 通过 fetcher 加载文档并在成功时绑定。
// 加载期间若发生 Bind 或新的 FetchRemote，结果被丢弃并返回 Canceled。
func (d *DocumentContext) FetchRemote(ctx context.Context, locator string) (*model.Document, error) {
	if locator == "" {
		return nil, apperr.Validation("document locator must not be empty")
	}
	if d.fetcher == nil {
		return nil, apperr.New(apperr.KindInternal, "no document fetcher configured")
	}

	d.mu.Lock()
	if d.fetchCancel != nil {
		d.fetchCancel()
	}
	d.fetchGen++
	gen := d.fetchGen
	fctx, cancel := context.WithCancel(ctx)
	d.fetchCancel = cancel
	d.status = FetchStatus{Phase: FetchPending, Locator: locator}
	d.mu.Unlock()
	defer cancel()

	doc, err := d.fetcher.Fetch(fctx, locator)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.fetchGen {
		return nil, apperr.New(apperr.KindCanceled, "fetch of %s was superseded", locator)
	}
	d.fetchCancel = nil
	if err == nil && !doc.HasPayload() {
		err = apperr.New(apperr.KindInternal, "document %s has no content", locator)
	}
	if err != nil {
		err = apperr.FromContext(fctx, err, "fetch document")
		d.status = FetchStatus{Phase: FetchFailed, Locator: locator, Reason: apperr.MessageOf(err)}
		return nil, err
	}
	d.status = FetchStatus{Phase: FetchReady, Locator: locator, Document: doc}
	d.bindLocked(doc)
	return doc, nil
}

// withPayload 返回带内容的当前文档及其版本。只有定位符时通过 fetcher 补全，
// 补全不算新的绑定，版本不变。
func (d *DocumentContext) withPayload(ctx context.Context) (*model.Document, uint64, error) {
	d.mu.Lock()
	doc, version := d.current, d.version
	d.mu.Unlock()

	if doc == nil || doc.HasPayload() {
		return doc, version, nil
	}
	loaded, err := d.resolve(ctx, doc)
	if err != nil {
		return nil, 0, err
	}

	d.mu.Lock()
	if d.version == version {
		d.current = loaded
	}
	d.mu.Unlock()
	return loaded, version, nil
}

// resolve 为只有定位符的文档加载内容。
func (d *DocumentContext) resolve(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if doc.HasPayload() {
		return doc, nil
	}
	if d.fetcher == nil || doc.ID == "" {
		return nil, apperr.Validation("document %q has no content", doc.Name)
	}
	loaded, err := d.fetcher.Fetch(ctx, doc.ID)
	if err != nil {
		return nil, apperr.FromContext(ctx, err, "fetch document")
	}
	if !loaded.HasPayload() {
		return nil, apperr.New(apperr.KindInternal, "document %s has no content", doc.ID)
	}
	return loaded, nil
}
