package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"stututor-go/internal/bridge"
	"stututor-go/internal/model"
	"stututor-go/internal/repository"
	"stututor-go/internal/service"
	"stututor-go/internal/session"
	"stututor-go/pkg/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubBridge 按意图返回固定结果。
// hold 非 nil 时调用阻塞到 hold 关闭或上下文结束。
type stubBridge struct {
	mu    sync.Mutex
	calls []bridge.Call
	err   error
	hold  chan struct{}
}

func (b *stubBridge) Generate(ctx context.Context, call bridge.Call) (*bridge.Result, error) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	err, hold := b.err, b.hold
	b.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, apperr.FromContext(ctx, ctx.Err(), "generate")
		}
	}
	if err != nil {
		return nil, err
	}
	res := &bridge.Result{Intent: call.Intent}
	switch call.Intent {
	case bridge.IntentChatTurn:
		res.Reply = "reply to " + call.Message
	case bridge.IntentStudyNotesFromTopic, bridge.IntentStudyNotesFromDocument:
		res.Notes = &model.StudyNotes{ID: "n1", Summary: "summary of " + call.Topic}
	default:
		res.Quiz = &model.Quiz{ID: "q1", Difficulty: "Easy", Questions: []model.QuizQuestion{
			{ID: "1", Question: "2+2?", Answer: "4", Choices: []string{"3", "4"}},
		}}
	}
	return res, nil
}

type stubUploads struct {
	mu        sync.Mutex
	uploads   []service.UploadInput
	discarded []string
}

func (u *stubUploads) UploadPDF(_ context.Context, in service.UploadInput) (*model.DocumentRecord, error) {
	if in.DeclaredType != model.MIMETypePDF {
		return nil, apperr.Validation("Only PDF files are allowed")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, in)
	return &model.DocumentRecord{
		ID:          fmt.Sprintf("doc-uploaded-%d", len(u.uploads)),
		FileName:    in.FileName,
		StoragePath: "pdfs/1_abc.pdf",
		PublicURL:   "http://minio.local/pdfs/1_abc.pdf",
		MIMEType:    in.DeclaredType,
		FileSize:    in.Size,
	}, nil
}

func (u *stubUploads) Discard(_ context.Context, record *model.DocumentRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.discarded = append(u.discarded, record.ID)
	return nil
}

func (u *stubUploads) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploads)
}

func (u *stubUploads) discardedIDs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.discarded...)
}

type stubDocuments struct {
	docs map[string]*model.Document
}

func (d *stubDocuments) Fetch(_ context.Context, locator string) (*model.Document, error) {
	doc, ok := d.docs[locator]
	if !ok {
		return nil, apperr.NotFound("document %s not found", locator)
	}
	return doc, nil
}

func (d *stubDocuments) List(_ context.Context, _ uint, _ int) ([]model.DocumentRecord, error) {
	out := make([]model.DocumentRecord, 0, len(d.docs))
	for _, doc := range d.docs {
		out = append(out, model.DocumentRecord{ID: doc.ID, FileName: doc.Name, MIMEType: doc.MIMEType})
	}
	return out, nil
}

func (d *stubDocuments) Get(_ context.Context, id string) (*model.DocumentRecord, error) {
	doc, ok := d.docs[id]
	if !ok {
		return nil, apperr.NotFound("document %s not found", id)
	}
	return &model.DocumentRecord{ID: doc.ID, FileName: doc.Name, MIMEType: doc.MIMEType}, nil
}

func (d *stubDocuments) DownloadURL(_ context.Context, id string) (string, error) {
	if _, ok := d.docs[id]; !ok {
		return "", apperr.NotFound("document %s not found", id)
	}
	return "http://minio.local/" + id + "?X-Amz-Signature=abc", nil
}

func pdfBytes(tag string) []byte {
	return []byte("%PDF-1.4\n% " + tag + "\n")
}

func pdfDocument(id string) *model.Document {
	data := pdfBytes(id)
	return &model.Document{ID: id, Name: id + ".pdf", MIMEType: model.MIMETypePDF, Size: int64(len(data)), Data: data}
}

type apiFixture struct {
	router    *gin.Engine
	manager   *session.Manager
	bridge    *stubBridge
	uploads   *stubUploads
	documents *stubDocuments
	store     repository.ConversationStore
	hub       *EventHub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		bridge:    &stubBridge{},
		uploads:   &stubUploads{},
		documents: &stubDocuments{docs: map[string]*model.Document{"doc-1": pdfDocument("doc-1")}},
		store:     repository.NewMemoryConversationStore(),
		hub:       NewEventHub(),
	}
	f.manager = session.NewManager(f.store, f.bridge, f.documents, session.Options{CallTimeout: time.Second, HistoryLimit: 10}, time.Hour, f.hub)

	sessions := NewSessionHandler(f.manager, f.uploads, f.documents)
	conversations := NewConversationHandler(service.NewConversationService(f.store, 10))
	documents := NewDocumentHandler(f.uploads, f.documents)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/sessions", sessions.Open)
	api.GET("/sessions/:id", sessions.Snapshot)
	api.DELETE("/sessions/:id", sessions.Close)
	api.POST("/sessions/:id/cancel", sessions.Cancel)
	api.PUT("/sessions/:id/document", sessions.BindDocument)
	api.POST("/sessions/:id/notes", sessions.GenerateNotes)
	api.POST("/sessions/:id/quiz", sessions.GenerateQuiz)
	api.POST("/sessions/:id/conversations/:cid/turns", sessions.SendTurn)
	api.POST("/conversations", conversations.Create)
	api.GET("/conversations", conversations.List)
	api.GET("/conversations/:cid", conversations.Get)
	api.GET("/conversations/:cid/messages", conversations.Messages)
	api.POST("/documents", documents.Upload)
	api.GET("/documents", documents.List)
	api.GET("/documents/:id", documents.Get)
	api.GET("/documents/:id/download", documents.Download)
	f.router = r
	return f
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.serve(t, req)
}

func (f *apiFixture) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (f *apiFixture) openSession(t *testing.T) string {
	t.Helper()
	w, env := f.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	return snap.SessionID
}
