package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"stututor-go/internal/model"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/storage"
	"stututor-go/pkg/tasks"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	f.objects[key] = buf.Bytes()
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeStore) Stat(_ context.Context, key string) (*storage.ObjectInfo, error) {
	data, err := f.Get(context.Background(), key)
	if err != nil {
		return nil, err
	}
	return &storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeStore) PublicURL(key string) string {
	return "http://minio.local/pdfs/" + key
}

func (f *fakeStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://minio.local/pdfs/" + key + "?X-Amz-Signature=abc", nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*model.DocumentRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]*model.DocumentRecord{}}
}

func (f *fakeRepo) Create(_ context.Context, r *model.DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeRepo) FindByID(_ context.Context, id string) (*model.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, apperr.NotFound("document %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, ownerID uint, limit int) ([]model.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DocumentRecord
	for _, r := range f.records {
		if ownerID == 0 || r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) UpdateMetadata(_ context.Context, id string, meta model.PDFMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return errors.New("not found")
	}
	r.PageCount, r.Title, r.Author = meta.PageCount, meta.Title, meta.Author
	r.Status = model.DocumentStatusProcessed
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id string, status int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[id]; ok {
		r.Status = status
	}
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

type fakePublisher struct {
	tasks []tasks.DocumentProcessingTask
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, task tasks.DocumentProcessingTask) error {
	f.tasks = append(f.tasks, task)
	return f.err
}
