package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processing-platform/internal/queue"
	"document-processing-platform/models"
)

func TestUpload_AdmitsBatch(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(3, "ops@example.com")

	body, ct := multipartBody(t, "",
		uploadFile{name: "report.pdf", data: pdfBytes("one")},
		uploadFile{name: "notes.pdf", data: pdfBytes("two")},
	)
	w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decodeBody[models.UploadResponse](t, w)
	assert.Len(t, res.TaskIDs, 2)
	assert.Equal(t, 2, res.TotalFiles)

	// Document rows, cache records, and queue tasks all exist.
	assert.Len(t, env.cat.docs, 2)
	assert.Equal(t, res.TaskIDs, env.cache.registered)
	require.Len(t, env.enq.tasks, 2)
	assert.Equal(t, queue.TaskDocumentIngest, env.enq.tasks[0].Type())

	var payload queue.IngestPayload
	require.NoError(t, json.Unmarshal(env.enq.tasks[0].Payload(), &payload))
	assert.Equal(t, res.TaskIDs[0], payload.TaskID)
	assert.Equal(t, int64(3), payload.UserID)
	assert.Equal(t, "report.pdf", payload.Filename)
	assert.NotEmpty(t, payload.BlobHandle)

	// The blob is fetchable through the handle the payload carries.
	data, err := env.deps.Blobs.Get(context.Background(), payload.BlobHandle)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes("one"), data)
}

func TestUpload_PromptReachesPayload(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(3, "ops@example.com")

	body, ct := multipartBody(t, "summarize key risks",
		uploadFile{name: "report.pdf", data: pdfBytes("one")},
	)
	w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, env.enq.tasks, 1)
	var payload queue.IngestPayload
	require.NoError(t, json.Unmarshal(env.enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "summarize key risks", payload.Prompt)

	doc := env.cat.docs[payload.DocumentID]
	require.NotNil(t, doc)
	require.NotNil(t, doc.Prompt)
	assert.Equal(t, "summarize key risks", *doc.Prompt)
}

func TestUpload_RequiresUserID(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "", uploadFile{name: "a.pdf", data: pdfBytes("a")})
	w := env.do(http.MethodPost, "/upload", body, ct)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_UnknownUserIs404(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "", uploadFile{name: "a.pdf", data: pdfBytes("a")})
	w := env.do(http.MethodPost, "/upload?user_id=99", body, ct)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, env.enq.tasks)
}

func TestUpload_TooManyFiles(t *testing.T) {
	env := newTestEnv(t) // MaxFilesPerUpload is 3
	env.cat.addUser(3, "ops@example.com")

	body, ct := multipartBody(t, "",
		uploadFile{name: "a.pdf", data: pdfBytes("a")},
		uploadFile{name: "b.pdf", data: pdfBytes("b")},
		uploadFile{name: "c.pdf", data: pdfBytes("c")},
		uploadFile{name: "d.pdf", data: pdfBytes("d")},
	)
	w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.cat.docs)
}

func TestUpload_OversizedFileIs413(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(3, "ops@example.com")

	big := make([]byte, env.deps.Cfg.MaxFileSize+1)
	copy(big, pdfBytes("big"))
	body, ct := multipartBody(t, "", uploadFile{name: "big.pdf", data: big})
	w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, env.cat.docs)
}

func TestUpload_NonPDFIs415(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(3, "ops@example.com")

	cases := []uploadFile{
		{name: "doc.txt", data: pdfBytes("magic-but-wrong-ext")},
		{name: "doc.pdf", data: []byte("plain text pretending")},
	}
	for _, f := range cases {
		body, ct := multipartBody(t, "", f)
		w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code, f.name)
	}
	assert.Empty(t, env.cat.docs)
}

func TestUpload_RejectedBatchAdmitsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(3, "ops@example.com")

	// Second file fails the sniff, so the valid first file must not be
	// admitted either.
	body, ct := multipartBody(t, "",
		uploadFile{name: "good.pdf", data: pdfBytes("good")},
		uploadFile{name: "bad.pdf", data: []byte("not a pdf")},
	)
	w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Empty(t, env.cat.docs)
	assert.Empty(t, env.enq.tasks)
	assert.Empty(t, env.cache.registered)
}

func TestUpload_EnqueueFailureUnwindsAdmission(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(3, "ops@example.com")
	env.enq.err = errors.New("broker down")

	body, ct := multipartBody(t, "", uploadFile{name: "report.pdf", data: pdfBytes("one")})
	w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// Compensating cleanup removed the row and the cache record.
	assert.Empty(t, env.cat.docs)
	require.Len(t, env.cat.deletedDocs, 1)
	require.Len(t, env.cache.deleted, 1)
	assert.Equal(t, env.cache.registered, env.cache.deleted)
}

func TestUpload_NoFilesField(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(3, "ops@example.com")

	body, ct := multipartBody(t, "only a prompt")
	w := env.do(http.MethodPost, "/upload?user_id=3", body, ct)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
