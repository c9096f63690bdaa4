package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"document-processing-platform/internal/blob"
	"document-processing-platform/internal/catalog"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
)

type fakeCatalog struct {
	users     map[int64]*models.User
	docs      map[int64]*models.Document
	nextDocID int64

	userExistsErr error
	createDocErr  error
	listErr       error
	pingErr       error

	deletedDocs []int64
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		users:     make(map[int64]*models.User),
		docs:      make(map[int64]*models.Document),
		nextDocID: 100,
	}
}

func (f *fakeCatalog) addUser(id int64, email string) {
	f.users[id] = &models.User{ID: id, Email: email, APIKey: "sk-test", CreatedAt: time.Now().UTC()}
}

func (f *fakeCatalog) addDocument(doc models.Document) *models.Document {
	d := doc
	f.docs[d.ID] = &d
	return &d
}

func (f *fakeCatalog) CreateDocument(_ context.Context, userID int64, filename, blobHandle string, prompt *string) (*models.Document, error) {
	if f.createDocErr != nil {
		return nil, f.createDocErr
	}
	f.nextDocID++
	doc := &models.Document{
		ID:         f.nextDocID,
		UserID:     userID,
		Filename:   filename,
		BlobHandle: blobHandle,
		Status:     models.StatusPending,
		Prompt:     prompt,
		CreatedAt:  time.Now().UTC(),
	}
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeCatalog) GetDocument(_ context.Context, id int64) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return doc, nil
}

func (f *fakeCatalog) GetDocumentOwned(_ context.Context, id, userID int64) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok || doc.UserID != userID {
		return nil, catalog.ErrNotFound
	}
	return doc, nil
}

func (f *fakeCatalog) ListDocuments(_ context.Context, userID int64, statusFilter *string, offset, limit int) ([]models.Document, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var matched []models.Document
	for id := int64(0); id <= f.nextDocID; id++ {
		doc, ok := f.docs[id]
		if !ok || doc.UserID != userID {
			continue
		}
		if statusFilter != nil && doc.Status != *statusFilter {
			continue
		}
		matched = append(matched, *doc)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (f *fakeCatalog) DeleteDocument(_ context.Context, id int64) error {
	if _, ok := f.docs[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(f.docs, id)
	f.deletedDocs = append(f.deletedDocs, id)
	return nil
}

func (f *fakeCatalog) CreateUser(_ context.Context, email, apiKey string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return nil, catalog.ErrDuplicate
		}
	}
	id := int64(len(f.users) + 1)
	user := &models.User{ID: id, Email: email, APIKey: apiKey, CreatedAt: time.Now().UTC()}
	f.users[id] = user
	return user, nil
}

func (f *fakeCatalog) GetUser(_ context.Context, id int64) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return user, nil
}

func (f *fakeCatalog) UserExists(_ context.Context, id int64) (bool, error) {
	if f.userExistsErr != nil {
		return false, f.userExistsErr
	}
	_, ok := f.users[id]
	return ok, nil
}

func (f *fakeCatalog) Ping(_ context.Context) error { return f.pingErr }

type fakeTaskCache struct {
	order   []string
	tasks   map[string]*models.TaskRecord
	results map[string]*models.CachedResult

	registered []string
	deleted    []string

	listErr error
	pingErr error
}

func newFakeTaskCache() *fakeTaskCache {
	return &fakeTaskCache{
		tasks:   make(map[string]*models.TaskRecord),
		results: make(map[string]*models.CachedResult),
	}
}

func (f *fakeTaskCache) putTask(rec models.TaskRecord) {
	if _, ok := f.tasks[rec.TaskID]; !ok {
		f.order = append(f.order, rec.TaskID)
	}
	r := rec
	f.tasks[rec.TaskID] = &r
}

func (f *fakeTaskCache) RegisterTask(_ context.Context, taskID, filename string, createdAt time.Time) {
	f.registered = append(f.registered, taskID)
	f.putTask(models.TaskRecord{
		TaskID:    taskID,
		Status:    models.StatusPending,
		Filename:  filename,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
	})
}

func (f *fakeTaskCache) GetTask(_ context.Context, taskID string) (*models.TaskRecord, bool) {
	rec, ok := f.tasks[taskID]
	return rec, ok
}

func (f *fakeTaskCache) GetResult(_ context.Context, taskID string) (*models.CachedResult, bool) {
	res, ok := f.results[taskID]
	return res, ok
}

func (f *fakeTaskCache) DeleteTask(_ context.Context, taskID string) {
	f.deleted = append(f.deleted, taskID)
	delete(f.tasks, taskID)
	delete(f.results, taskID)
}

func (f *fakeTaskCache) ListTasks(_ context.Context, offset, limit int) ([]models.TaskRecord, int64, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	total := int64(len(f.order))
	if offset >= len(f.order) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(f.order) {
		end = len(f.order)
	}
	var page []models.TaskRecord
	for _, id := range f.order[offset:end] {
		if rec, ok := f.tasks[id]; ok {
			page = append(page, *rec)
		}
	}
	return page, total, nil
}

func (f *fakeTaskCache) Ping(_ context.Context) error { return f.pingErr }

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeChatter struct {
	res       *models.ChatResponse
	err       error
	gotUserID int64
	gotReq    models.ChatRequest
}

func (f *fakeChatter) Chat(_ context.Context, userID int64, req models.ChatRequest) (*models.ChatResponse, error) {
	f.gotUserID = userID
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeReports struct {
	data      []byte
	err       error
	gotUserID int64
	gotFilter *string
}

func (f *fakeReports) BuildDocumentsWorkbook(_ context.Context, userID int64, statusFilter *string) ([]byte, error) {
	f.gotUserID = userID
	f.gotFilter = statusFilter
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type testEnv struct {
	router *gin.Engine
	deps   *Deps
	cat    *fakeCatalog
	cache  *fakeTaskCache
	enq    *fakeEnqueuer
	chat   *fakeChatter
	report *fakeReports
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics, err := telemetry.InitMetrics()
	require.NoError(t, err)

	blobs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		cat:    newFakeCatalog(),
		cache:  newFakeTaskCache(),
		enq:    &fakeEnqueuer{},
		chat:   &fakeChatter{},
		report: &fakeReports{data: []byte("xlsx-bytes")},
	}
	env.deps = &Deps{
		Cfg: &config.Config{
			MaxFileSize:        1 << 20,
			MaxFilesPerUpload:  3,
			MaxIngestRetries:   3,
			PerMessageDeadline: time.Minute,
		},
		Catalog:  env.cat,
		Cache:    env.cache,
		Blobs:    blobs,
		Enqueuer: env.enq,
		Chat:     env.chat,
		Reports:  env.report,
		Metrics:  metrics,
	}

	env.router = gin.New()
	Register(env.router, env.deps)
	return env
}

func (e *testEnv) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path string, payload interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(payload)
	return e.do(method, path, bytes.NewReader(raw), "application/json")
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

type uploadFile struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, prompt string, files ...uploadFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	if prompt != "" {
		require.NoError(t, w.WriteField("prompt", prompt))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func pdfBytes(marker string) []byte {
	return []byte("%PDF-1.4\n% " + marker + "\n")
}
