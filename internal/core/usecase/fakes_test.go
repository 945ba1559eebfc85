package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

type docRepoFake struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	calls     []string
	createErr error
	beginErr  error
	getErr    error
	completed map[string]domain.Analysis
	failed    map[string]string
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{
		docs:      map[string]*domain.Document{},
		completed: map[string]domain.Analysis{},
		failed:    map[string]string{},
	}
}

func (f *docRepoFake) put(doc domain.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = &doc
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) GetForOwner(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *docRepoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) transition(id string, from, to domain.DocumentStatus) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	if doc.Status != from || !domain.CanTransition(from, to) {
		return nil, domain.ErrConflict
	}
	doc.Status = to
	doc.Version++
	return doc, nil
}

func (f *docRepoFake) BeginAnalysis(_ context.Context, id string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "begin")
	if f.beginErr != nil {
		return f.beginErr
	}
	_, err := f.transition(id, domain.StatusUploaded, domain.StatusAnalyzing)
	return err
}

func (f *docRepoFake) CompleteAnalysis(_ context.Context, id string, analysis domain.Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.transition(id, domain.StatusAnalyzing, domain.StatusCompleted)
	if err != nil {
		return err
	}
	doc.Analysis = &analysis
	f.completed[id] = analysis
	return nil
}

func (f *docRepoFake) FailAnalysis(_ context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.transition(id, domain.StatusAnalyzing, domain.StatusFailed)
	if err != nil {
		return err
	}
	doc.FailureReason = reason
	f.failed[id] = reason
	return nil
}

type jobQueueFake struct {
	mu       sync.Mutex
	done     []string
	retries  []retryCall
	released []string
	err      error
}

type retryCall struct {
	documentID string
	runAt      time.Time
	lastError  string
}

func (f *jobQueueFake) Claim(context.Context, string, time.Duration) (*domain.AnalysisJob, error) {
	return nil, errors.New("not implemented")
}

func (f *jobQueueFake) Retry(_ context.Context, documentID string, runAt time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.retries = append(f.retries, retryCall{documentID: documentID, runAt: runAt, lastError: lastError})
	return nil
}

func (f *jobQueueFake) MarkDone(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, documentID)
	return f.err
}

func (f *jobQueueFake) Release(_ context.Context, documentID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, documentID)
	return f.err
}

func (f *jobQueueFake) RequeueStaleUploads(context.Context, time.Duration, int) (int, error) {
	return 0, errors.New("not implemented")
}

type storageFake struct {
	objects map[string][]byte
	deleted []string
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.objects[key] = raw
	return int64(len(raw)), nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

type signalFake struct {
	published []string
	err       error
}

func (f *signalFake) PublishJobEnqueued(_ context.Context, documentID string) error {
	f.published = append(f.published, documentID)
	return f.err
}

func (f *signalFake) SubscribeJobEnqueued(context.Context, func(context.Context, string)) error {
	return errors.New("not implemented")
}

type notifierFake struct {
	mu        sync.Mutex
	published map[string]domain.DocumentStatus
	watchers  map[string]chan domain.DocumentStatus
	watchErr  error
	onWatch   func(documentID string)
}

func newNotifierFake() *notifierFake {
	return &notifierFake{
		published: map[string]domain.DocumentStatus{},
		watchers:  map[string]chan domain.DocumentStatus{},
	}
}

func (f *notifierFake) PublishStatus(_ context.Context, documentID string, status domain.DocumentStatus) error {
	f.mu.Lock()
	f.published[documentID] = status
	ch := f.watchers[documentID]
	f.mu.Unlock()
	if ch != nil {
		ch <- status
	}
	return nil
}

func (f *notifierFake) Watch(_ context.Context, documentID string) (<-chan domain.DocumentStatus, func(), error) {
	if f.watchErr != nil {
		return nil, nil, f.watchErr
	}
	ch := make(chan domain.DocumentStatus, 1)
	f.mu.Lock()
	f.watchers[documentID] = ch
	f.mu.Unlock()
	if f.onWatch != nil {
		f.onWatch(documentID)
	}
	return ch, func() {
		f.mu.Lock()
		delete(f.watchers, documentID)
		f.mu.Unlock()
	}, nil
}

type analyzerFake struct {
	analysis domain.Analysis
	err      error
	calls    int
}

func (f *analyzerFake) Analyze(context.Context, *domain.Document) (domain.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

func validAnalysis() domain.Analysis {
	return domain.Analysis{
		DocumentType:    "NDA",
		KeyPoints:       []string{"Confidentiality provisions included"},
		RiskAssessment:  domain.RiskMedium,
		Recommendations: []string{"Review indemnification terms"},
		ComplianceCheck: "Compliant with standard legal requirements",
		Confidence:      91,
	}
}
