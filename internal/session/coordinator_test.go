package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"stututor-go/internal/bridge"
	"stututor-go/internal/model"
	"stututor-go/internal/repository"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/llm"
	"stututor-go/pkg/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const validQuiz = `{"questions":[{"id":"1","question":"What is ATP?","answer":"Energy currency","choices":["Energy currency","A protein"],"difficulty":"Easy","topic":"Biology"}]}`

const validNotes = `{"summary":"Cells","key_concepts":["membrane"],"important_terms":["ATP"],"practice_questions":["What is ATP?"]}`

// scriptedLLM 是可控的 AI 后端。
type scriptedLLM struct {
	mu        sync.Mutex
	reply     string
	err       error
	delay     time.Duration
	gate      chan struct{}
	ignoreCtx bool
	calls     int
	requests  []*llm.Request
}

func (s *scriptedLLM) set(reply string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply, s.err = reply, err
}

func (s *scriptedLLM) setDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedLLM) lastRequest() *llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *scriptedLLM) Generate(ctx context.Context, req *llm.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.requests = append(s.requests, req)
	reply, err, delay, gate, ignore := s.reply, s.err, s.delay, s.gate, s.ignoreCtx
	s.mu.Unlock()

	if gate != nil {
		if ignore {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

type mapFetcher struct {
	mu   sync.Mutex
	docs map[string]*model.Document
	gate chan struct{}
}

func (f *mapFetcher) Fetch(ctx context.Context, locator string) (*model.Document, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[locator]
	if !ok {
		return nil, apperr.NotFound("document %s not found", locator)
	}
	return doc, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func pdfDoc(id string) *model.Document {
	data := []byte("%PDF-1.4\n% " + id + "\n")
	return &model.Document{ID: id, Name: id + ".pdf", MIMEType: model.MIMETypePDF, Size: int64(len(data)), Data: data}
}

type fixture struct {
	coord   *Coordinator
	llm     *scriptedLLM
	store   repository.ConversationStore
	fetcher *mapFetcher
	sink    *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		llm:     &scriptedLLM{reply: "ok"},
		store:   repository.NewMemoryConversationStore(),
		fetcher: &mapFetcher{docs: map[string]*model.Document{}},
		sink:    &recordingSink{},
	}
	br := bridge.New(f.llm, bridge.Models{})
	f.coord = NewCoordinator("s1", f.store, br, f.fetcher, Options{CallTimeout: 5 * time.Second, HistoryLimit: 10}, f.sink)
	return f
}

func (f *fixture) conversation(t *testing.T) string {
	t.Helper()
	conv, err := f.coord.CreateConversation(context.Background(), "")
	require.NoError(t, err)
	return conv.ID
}

func TestChatTurnAppendsUserThenAssistant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)
	require.NoError(t, f.coord.BindDocument(pdfDoc("bio")))
	f.llm.set("The mitochondrion produces ATP.", nil)

	res, err := f.coord.SendUserTurn(ctx, convID, "What is a mitochondrion?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The mitochondrion produces ATP.", res.Reply.Content)
	assert.Equal(t, "What is a mitochondrion?", res.Conversation.Title)

	history, err := f.coord.History(ctx, convID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "What is a mitochondrion?", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, res.Reply.ID, history[1].ID)
	assert.Equal(t, StateIdle, f.coord.State())

	// 当前文档随请求一起发送
	req := f.llm.lastRequest()
	require.NotNil(t, req)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, pdfDoc("bio").Data, last.Parts[0].Data)
	assert.Contains(t, f.sink.types(), EventMessages)
}

func TestHistoryIsAppendOnlyAndBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)

	var prefix []model.Message
	for i := 0; i < 6; i++ {
		_, err := f.coord.SendUserTurn(ctx, convID, "question", nil)
		require.NoError(t, err)
		history, err := f.coord.History(ctx, convID, 0)
		require.NoError(t, err)
		require.Len(t, history, 2*(i+1))
		assert.Equal(t, prefix, history[:len(prefix)])
		prefix = history
	}

	// 发送给后端的历史被截断为最近 10 条，再加上新的用户消息
	_, err := f.coord.SendUserTurn(ctx, convID, "last", nil)
	require.NoError(t, err)
	assert.Len(t, f.llm.lastRequest().Messages, 11)
}

func TestChatTurnUnknownConversation(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.SendUserTurn(context.Background(), "missing", "hi", nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, 0, f.llm.callCount())
	assert.Equal(t, StateIdle, f.coord.State())
}

// slowHistoryStore 的 History 一直阻塞到调用方的上下文结束。
type slowHistoryStore struct {
	repository.ConversationStore
}

func (s slowHistoryStore) History(ctx context.Context, _ string, _ int) ([]model.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHistoryLoadTimeoutMapsToTimeout(t *testing.T) {
	f := newFixture(t)
	convID := f.conversation(t)
	coord := NewCoordinator("s2", slowHistoryStore{f.store}, bridge.New(f.llm, bridge.Models{}), f.fetcher, Options{CallTimeout: 50 * time.Millisecond, HistoryLimit: 10}, f.sink)

	_, err := coord.SendUserTurn(context.Background(), convID, "hi", nil)
	assert.True(t, errors.Is(err, apperr.ErrTimeout), err)
	assert.Equal(t, 0, f.llm.callCount())
	assert.Equal(t, StateIdle, coord.State())
}

// stuckAppendStore 的 AppendMessage 一直阻塞到写入上下文结束。
type stuckAppendStore struct {
	repository.ConversationStore
}

func (s stuckAppendStore) AppendMessage(ctx context.Context, _ string, _ ...model.Message) (*model.Conversation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreWriteIsBoundedAndReleasesSession(t *testing.T) {
	f := newFixture(t)
	convID := f.conversation(t)
	coord := NewCoordinator("s3", stuckAppendStore{f.store}, bridge.New(f.llm, bridge.Models{}), f.fetcher, Options{CallTimeout: time.Second, HistoryLimit: 10}, f.sink)

	start := time.Now()
	_, err := coord.SendUserTurn(context.Background(), convID, "hi", nil)
	assert.True(t, errors.Is(err, apperr.ErrTimeout), err)
	assert.Less(t, time.Since(start), storeTimeout+time.Second)
	assert.Equal(t, StateIdle, coord.State())

	history, err := f.store.History(context.Background(), convID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.SendUserTurn(context.Background(), f.conversation(t), "   ", nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, 0, f.llm.callCount())
}

func TestSecondRequestWhileGeneratingIsBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)
	gate := make(chan struct{})
	f.llm.gate = gate

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.coord.SendUserTurn(ctx, convID, "first", nil)
	}()
	require.Eventually(t, func() bool { return f.coord.State() == StateGenerating }, time.Second, time.Millisecond)

	_, err := f.coord.GenerateQuiz(ctx, QuizRequest{Source: SourceTopic, Topic: "Biology"})
	assert.True(t, errors.Is(err, apperr.ErrBusy))
	_, err = f.coord.SendUserTurn(ctx, convID, "second", nil)
	assert.True(t, errors.Is(err, apperr.ErrBusy))

	close(gate)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, f.llm.callCount())

	history, err := f.coord.History(ctx, convID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestQuizWhileNotesPendingIsBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := make(chan struct{})
	f.llm.gate = gate
	f.llm.set(validNotes, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.GenerateStudyNotes(ctx, NotesRequest{Source: SourceTopic, Topic: "Biology"})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.coord.State() == StateGenerating }, time.Second, time.Millisecond)

	_, err := f.coord.GenerateQuiz(ctx, QuizRequest{Source: SourceTopic, Topic: "Biology"})
	assert.True(t, errors.Is(err, apperr.ErrBusy))
	assert.Contains(t, err.Error(), "notes")
	assert.Equal(t, StateGenerating, f.coord.State())

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.llm.callCount())
	notes := f.coord.Notes()
	require.NotNil(t, notes)
	assert.Equal(t, "Cells", notes.Notes.Summary)
	assert.Nil(t, f.coord.Quiz())
	assert.Equal(t, StateIdle, f.coord.State())
}

func TestCancelDiscardsLateResult(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log.Replace(zap.New(core))
	t.Cleanup(func() { log.Replace(zap.NewNop()) })
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)
	gate := make(chan struct{})
	f.llm.gate = gate
	f.llm.ignoreCtx = true
	f.llm.set("late answer", nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.SendUserTurn(ctx, convID, "question", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.coord.State() == StateGenerating }, time.Second, time.Millisecond)

	assert.True(t, f.coord.Cancel())
	assert.Equal(t, StateIdle, f.coord.State())
	assert.False(t, f.coord.Cancel())

	close(gate)
	err := <-done
	assert.True(t, errors.Is(err, apperr.ErrCanceled), err)
	discarded := logs.FilterMessage("discarding result of canceled call").All()
	require.Len(t, discarded, 1)
	assert.Equal(t, "s1", discarded[0].ContextMap()["session"])

	history, err := f.coord.History(ctx, convID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCancelAllowsNewRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := make(chan struct{})
	f.llm.gate = gate

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.GenerateStudyNotes(ctx, NotesRequest{Source: SourceTopic, Topic: "Biology"})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.coord.State() == StateGenerating }, time.Second, time.Millisecond)
	f.coord.Cancel()
	assert.True(t, errors.Is(<-done, apperr.ErrCanceled))

	f.llm.mu.Lock()
	f.llm.gate = nil
	f.llm.mu.Unlock()
	close(gate)
	f.llm.set(validNotes, nil)
	notes, err := f.coord.GenerateStudyNotes(ctx, NotesRequest{Source: SourceTopic, Topic: "Biology"})
	require.NoError(t, err)
	assert.Equal(t, "Cells", notes.Notes.Summary)
}

func TestMalformedQuizLeavesPreviousQuiz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coord.BindDocument(pdfDoc("bio")))

	f.llm.set(validQuiz, nil)
	first, err := f.coord.GenerateQuiz(ctx, QuizRequest{Source: SourceDocument})
	require.NoError(t, err)

	f.llm.set("Sure! Here are some questions: 1) What is ATP?", nil)
	_, err = f.coord.GenerateQuiz(ctx, QuizRequest{Source: SourceDocument})
	assert.True(t, errors.Is(err, apperr.ErrMalformedResponse))
	assert.Equal(t, StateIdle, f.coord.State())

	current := f.coord.Quiz()
	require.NotNil(t, current)
	assert.Equal(t, first.Quiz.ID, current.Quiz.ID)
	assert.Contains(t, f.sink.types(), EventError)
}

func TestTimeoutThenRetrySucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)
	f.llm.setDelay(5 * time.Second)

	start := time.Now()
	_, err := f.coord.SendUserTurn(ctx, convID, "slow question", nil, WithTimeout(1000*time.Millisecond))
	assert.True(t, errors.Is(err, apperr.ErrTimeout), err)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, StateIdle, f.coord.State())

	history, err := f.coord.History(ctx, convID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	f.llm.setDelay(0)
	_, err = f.coord.SendUserTurn(ctx, convID, "slow question", nil, WithTimeout(1000*time.Millisecond))
	require.NoError(t, err)
	history, err = f.coord.History(ctx, convID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestBindMarksDocumentArtifactsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coord.BindDocument(pdfDoc("d1")))

	f.llm.set(validNotes, nil)
	notes, err := f.coord.GenerateStudyNotes(ctx, NotesRequest{Source: SourceDocument})
	require.NoError(t, err)
	assert.Equal(t, "d1", notes.SourceDocumentID)
	assert.False(t, notes.Stale)

	f.llm.set(validQuiz, nil)
	_, err = f.coord.GenerateQuiz(ctx, QuizRequest{Source: SourceTopic, Topic: "Biology"})
	require.NoError(t, err)

	require.NoError(t, f.coord.BindDocument(pdfDoc("d2")))
	snap := f.coord.Snapshot()
	assert.Equal(t, "d2", snap.Document.ID)
	require.NotNil(t, snap.Notes)
	assert.True(t, snap.Notes.Stale)
	require.NotNil(t, snap.Quiz)
	assert.False(t, snap.Quiz.Stale, "topic quiz does not depend on the document")

	// 重新生成后不再过期
	f.llm.set(validNotes, nil)
	notes, err = f.coord.GenerateStudyNotes(ctx, NotesRequest{Source: SourceDocument})
	require.NoError(t, err)
	assert.False(t, notes.Stale)
	assert.Equal(t, "d2", notes.SourceDocumentID)
}

func TestResultFromSupersededDocumentIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coord.BindDocument(pdfDoc("d1")))
	gate := make(chan struct{})
	f.llm.gate = gate
	f.llm.set(validNotes, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.GenerateStudyNotes(ctx, NotesRequest{Source: SourceDocument})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.coord.State() == StateGenerating }, time.Second, time.Millisecond)
	require.NoError(t, f.coord.BindDocument(pdfDoc("d2")))
	close(gate)
	require.NoError(t, <-done)

	notes := f.coord.Notes()
	require.NotNil(t, notes)
	assert.Equal(t, "d1", notes.SourceDocumentID)
	assert.True(t, notes.Stale)
}

func TestAttachmentBoundOnlyOnSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)
	require.NoError(t, f.coord.BindDocument(pdfDoc("d1")))

	f.llm.set("", errors.New("backend unavailable"))
	_, err := f.coord.SendUserTurn(ctx, convID, "explain", pdfDoc("d2"))
	assert.True(t, errors.Is(err, apperr.ErrUpstreamFailure))
	assert.Contains(t, err.Error(), "backend unavailable")
	assert.Equal(t, "d1", f.coord.CurrentDocument().ID)
	history, err := f.coord.History(ctx, convID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	f.llm.set("explained", nil)
	res, err := f.coord.SendUserTurn(ctx, convID, "explain", pdfDoc("d2"))
	require.NoError(t, err)
	assert.Equal(t, "d2", f.coord.CurrentDocument().ID)
	require.NotNil(t, res.UserMessage.FileAttachment)
	assert.Equal(t, model.MIMETypePDF, res.UserMessage.FileAttachment.Type)
	assert.Equal(t, "d2", res.Conversation.PDFMetadata.DocumentID)
}

func TestReattachingCurrentDocumentKeepsArtifactsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)
	require.NoError(t, f.coord.BindDocument(pdfDoc("d1")))

	f.llm.set(validNotes, nil)
	_, err := f.coord.GenerateStudyNotes(ctx, NotesRequest{Source: SourceDocument})
	require.NoError(t, err)
	version := f.coord.docs.Version()

	f.llm.set("explained", nil)
	_, err = f.coord.SendUserTurn(ctx, convID, "explain page 2", pdfDoc("d1"))
	require.NoError(t, err)
	assert.Equal(t, version, f.coord.docs.Version())
	notes := f.coord.Notes()
	require.NotNil(t, notes)
	assert.False(t, notes.Stale)

	// 不同的文档仍然替换当前文档
	_, err = f.coord.SendUserTurn(ctx, convID, "and this one", pdfDoc("d2"))
	require.NoError(t, err)
	assert.Equal(t, "d2", f.coord.CurrentDocument().ID)
	assert.True(t, f.coord.Notes().Stale)
}

func TestAttachmentValidation(t *testing.T) {
	f := newFixture(t)
	convID := f.conversation(t)

	wrongType := pdfDoc("x")
	wrongType.MIMEType = "image/png"
	_, err := f.coord.SendUserTurn(context.Background(), convID, "look", wrongType)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	disguised := pdfDoc("y")
	disguised.Data = []byte("just some text pretending to be a pdf")
	_, err = f.coord.SendUserTurn(context.Background(), convID, "look", disguised)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	assert.True(t, errors.Is(f.coord.BindDocument(wrongType), apperr.ErrValidation))
	assert.Equal(t, 0, f.llm.callCount())
	assert.Nil(t, f.coord.CurrentDocument())
}

func TestDocumentSourceRequiresDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.GenerateStudyNotes(context.Background(), NotesRequest{Source: SourceDocument})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, StateIdle, f.coord.State())

	_, err = f.coord.GenerateQuiz(context.Background(), QuizRequest{Source: "video"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestLocatorOnlyDocumentIsLoadedForGeneration(t *testing.T) {
	f := newFixture(t)
	full := pdfDoc("d1")
	f.fetcher.docs["d1"] = full
	require.NoError(t, f.coord.BindDocument(&model.Document{ID: "d1", Name: "d1.pdf", MIMEType: model.MIMETypePDF}))
	version := f.coord.Snapshot().DocumentVersion

	f.llm.set(validQuiz, nil)
	quiz, err := f.coord.GenerateQuiz(context.Background(), QuizRequest{Source: SourceDocument, Difficulty: "Hard", NumQuestions: 3})
	require.NoError(t, err)
	assert.False(t, quiz.Stale)
	assert.Equal(t, "Hard", quiz.Quiz.Difficulty)

	parts := f.llm.lastRequest().Messages[0].Parts
	assert.Equal(t, full.Data, parts[0].Data)
	assert.Equal(t, "3", parts[2].Text)
	assert.Equal(t, version, f.coord.Snapshot().DocumentVersion)
}

func TestOpenDocument(t *testing.T) {
	f := newFixture(t)
	f.fetcher.docs["d1"] = pdfDoc("d1")

	doc, err := f.coord.OpenDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, "d1", f.coord.CurrentDocument().ID)
	status := f.coord.Snapshot().Fetch
	assert.Equal(t, FetchReady, status.Phase)

	_, err = f.coord.OpenDocument(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, FetchFailed, f.coord.Snapshot().Fetch.Phase)
	assert.Equal(t, "d1", f.coord.CurrentDocument().ID)
}

func TestBindCancelsInFlightFetch(t *testing.T) {
	f := newFixture(t)
	f.fetcher.docs["remote"] = pdfDoc("remote")
	f.fetcher.gate = make(chan struct{})
	defer close(f.fetcher.gate)

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.OpenDocument(context.Background(), "remote")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.coord.Snapshot().Fetch.Phase == FetchPending }, time.Second, time.Millisecond)

	require.NoError(t, f.coord.BindDocument(pdfDoc("local")))
	err := <-done
	assert.True(t, errors.Is(err, apperr.ErrCanceled), err)
	assert.Equal(t, "local", f.coord.CurrentDocument().ID)
	assert.Equal(t, FetchFailed, f.coord.Snapshot().Fetch.Phase)
}

func TestOpenDocumentTimeout(t *testing.T) {
	f := newFixture(t)
	f.fetcher.gate = make(chan struct{})
	defer close(f.fetcher.gate)

	_, err := f.coord.OpenDocument(context.Background(), "slow", WithTimeout(20*time.Millisecond))
	assert.True(t, errors.Is(err, apperr.ErrTimeout), err)
	assert.Nil(t, f.coord.CurrentDocument())
}

func TestClosedSessionRejectsGeneration(t *testing.T) {
	f := newFixture(t)
	f.coord.Close()
	f.coord.Close()
	_, err := f.coord.GenerateQuiz(context.Background(), QuizRequest{Source: SourceTopic, Topic: "t"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Contains(t, f.sink.types(), EventClosed)
}
