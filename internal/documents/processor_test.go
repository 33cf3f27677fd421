package documents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/suPer8Hu/learnbot/internal/assistant"
)

func queuedJob(t *testing.T, repo *Repo) *IngestJob {
	t.Helper()
	svc := NewService(repo, &fakePublisher{}, t.TempDir(), nil)
	job, err := svc.Submit(context.Background(), 5, 11, "week1.pdf", strings.NewReader(samplePDF))
	require.NoError(t, err)
	return job
}

func newFlowise(t *testing.T, h http.HandlerFunc) *assistant.FlowiseClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return assistant.NewFlowiseClient(assistant.FlowiseOptions{
		BaseURL: srv.URL,
		APIKey:  "k",
		Timeout: 5 * time.Second,
	})
}

func TestProcess_UploadsAndRecords(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	job := queuedJob(t, repo)

	var gotMeta map[string]any
	var gotFile string
	client := newFlowise(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/nodes/pdfFile", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		assert.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mt)

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "perPage", r.FormValue("usage"))
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta))
		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			b, _ := io.ReadAll(f)
			gotFile = hdr.Filename + ":" + string(b)
		}
		_, _ = w.Write([]byte(`{"chunks":3}`))
	})

	p := NewProcessor(repo, client, nil)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	require.NoError(t, p.Process(context.Background(), job.ID))

	assert.Equal(t, "week1.pdf:"+samplePDF, gotFile)
	assert.Equal(t, "course_resource", gotMeta["documenttype"])
	assert.Equal(t, float64(11), gotMeta["courseid"])
	assert.Equal(t, float64(5), gotMeta["userid"])
	assert.Equal(t, float64(1700000000), gotMeta["uploadtime"])

	got, err := repo.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)

	up, err := repo.LatestUpload(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.True(t, up.Success)
	require.NotNil(t, up.ResponseData)
	assert.JSONEq(t, `{"chunks":3}`, *up.ResponseData)

	_, err = os.Stat(job.SpoolPath)
	assert.True(t, os.IsNotExist(err))
}

func TestProcess_UpstreamFailureMarksJobFailed(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	job := queuedJob(t, repo)

	client := newFlowise(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("loader exploded"))
	})

	require.NoError(t, NewProcessor(repo, client, nil).Process(context.Background(), job.ID))

	got, err := repo.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "loader exploded")

	up, err := repo.LatestUpload(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.False(t, up.Success)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(*up.ResponseData), &rec))
	assert.Equal(t, float64(http.StatusBadGateway), rec["http_code"])
}

func TestProcess_SkipsJobNotQueued(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	job := queuedJob(t, repo)
	require.NoError(t, repo.MarkJobSucceeded(context.Background(), job.ID))

	var calls atomic.Int32
	client := newFlowise(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, NewProcessor(repo, client, nil).Process(context.Background(), job.ID))
	assert.Zero(t, calls.Load())
}

func TestProcess_MissingSpoolFile(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	job := queuedJob(t, repo)
	require.NoError(t, os.Remove(job.SpoolPath))

	client := newFlowise(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})

	require.NoError(t, NewProcessor(repo, client, nil).Process(context.Background(), job.ID))

	got, err := repo.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)

	up, err := repo.LatestUpload(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.False(t, up.Success)
	assert.JSONEq(t, `{"error":"spool file missing"}`, *up.ResponseData)
}

// failJobUpdates makes the n-th update of chatbot_ingest_jobs fail.
func failJobUpdates(t *testing.T, db *gorm.DB, n ...int32) {
	t.Helper()
	var seen atomic.Int32
	err := db.Callback().Update().Before("gorm:update").Register("test:fail_job_update", func(tx *gorm.DB) {
		if tx.Statement.Table != "chatbot_ingest_jobs" {
			return
		}
		cur := seen.Add(1)
		for _, k := range n {
			if cur == k {
				_ = tx.AddError(errors.New("db blip"))
			}
		}
	})
	require.NoError(t, err)
}

func TestProcess_RetryAfterFailedStatusWriteSettlesJob(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	job := queuedJob(t, repo)

	var calls atomic.Int32
	client := newFlowise(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"chunks":1}`))
	})
	p := NewProcessor(repo, client, nil)

	// 1st update claims the job, 2nd is the final status write
	failJobUpdates(t, db, 2)

	err := p.Process(context.Background(), job.ID)
	require.Error(t, err)

	got, err := repo.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, got.Status)

	require.NoError(t, p.Process(context.Background(), job.ID))

	got, err = repo.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
	assert.Equal(t, int32(1), calls.Load(), "upload must not repeat")

	_, err = os.Stat(job.SpoolPath)
	assert.True(t, os.IsNotExist(err))
}

func TestProcess_RetryKeepsLoggedFailure(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	job := queuedJob(t, repo)

	client := newFlowise(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("loader exploded"))
	})
	p := NewProcessor(repo, client, nil)
	failJobUpdates(t, db, 2)

	require.Error(t, p.Process(context.Background(), job.ID))
	require.NoError(t, p.Process(context.Background(), job.ID))

	got, err := repo.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "loader exploded")
}

func TestProcess_ResumesRunningJobWithoutAttempt(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	job := queuedJob(t, repo)
	claimed, err := repo.MarkJobRunning(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	var calls atomic.Int32
	client := newFlowise(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, NewProcessor(repo, client, nil).Process(context.Background(), job.ID))
	assert.Equal(t, int32(1), calls.Load())

	got, err := repo.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, got.Status)
}

func TestProcess_UnknownJob(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	p := NewProcessor(repo, newFlowise(t, func(http.ResponseWriter, *http.Request) {}), nil)
	assert.Error(t, p.Process(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV"))
}
