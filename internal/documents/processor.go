package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/suPer8Hu/learnbot/internal/assistant"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

// Uploader sends a document to the upstream loader.
type Uploader interface {
	UploadDocument(ctx context.Context, doc assistant.Document) (json.RawMessage, error)
}

// Processor runs on the worker side and drives one job to a final state.
type Processor struct {
	repo     *Repo
	uploader Uploader
	log      *logger.Logger
	now      func() time.Time
}

func NewProcessor(repo *Repo, uploader Uploader, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{repo: repo, uploader: uploader, log: log.With("component", "ingest"), now: time.Now}
}

const errSpoolMissing = "spool file missing"

// Process uploads the spooled file for jobID. A non-nil error means the job
// could not be settled and the delivery should be retried; upstream failures
// are recorded on the job and return nil.
//
// A job left running by an earlier delivery is resumed. When that delivery
// already logged an upload attempt, only the final status is written.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	job, err := p.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	switch job.Status {
	case JobSucceeded, JobFailed:
		p.log.Info("job already settled, skipping", "job_id", jobID, "status", job.Status)
		return nil
	case JobQueued:
		claimed, err := p.repo.MarkJobRunning(ctx, jobID)
		if err != nil {
			return fmt.Errorf("claim job %s: %w", jobID, err)
		}
		if !claimed {
			// raced with another delivery; re-read and treat it as a resume
			if job, err = p.repo.GetJobByID(ctx, jobID); err != nil {
				return fmt.Errorf("load job %s: %w", jobID, err)
			}
			if job.Status != JobRunning {
				p.log.Info("job already settled, skipping", "job_id", jobID, "status", job.Status)
				return nil
			}
		}
	case JobRunning:
		p.log.Warn("resuming running job", "job_id", jobID)
	}

	last, err := p.repo.LatestUpload(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load upload log %s: %w", jobID, err)
	}
	if last != nil {
		return p.settle(ctx, job, last.Success, uploadError(last))
	}

	rec := &Upload{
		JobID:    job.ID,
		Filename: job.Filename,
		CourseID: job.CourseID,
		UserID:   job.UserID,
	}

	f, err := os.Open(job.SpoolPath)
	if err != nil {
		p.log.Error(errSpoolMissing, "job_id", jobID, "path", job.SpoolPath, "error", err)
		s := failureRecord(errSpoolMissing, 0)
		rec.ResponseData = &s
		p.logUpload(ctx, rec)
		return p.settle(ctx, job, false, errSpoolMissing)
	}

	raw, upErr := p.uploader.UploadDocument(ctx, assistant.Document{
		Filename: job.Filename,
		Content:  f,
		Metadata: map[string]any{
			"source":       job.Filename,
			"courseid":     job.CourseID,
			"userid":       job.UserID,
			"uploadtime":   p.now().Unix(),
			"documenttype": "course_resource",
		},
	})
	_ = f.Close()

	rec.Success = upErr == nil
	var errMsg string
	if upErr == nil {
		s := string(raw)
		rec.ResponseData = &s
	} else {
		errMsg = upErr.Error()
		var ae *assistant.Error
		status := 0
		if errors.As(upErr, &ae) {
			status = ae.Status
		}
		s := failureRecord(errMsg, status)
		rec.ResponseData = &s
		p.log.Error("document upload failed", "job_id", jobID, "error", upErr)
	}
	p.logUpload(ctx, rec)

	return p.settle(ctx, job, rec.Success, errMsg)
}

// settle writes the final status and drops the spool file.
func (p *Processor) settle(ctx context.Context, job *IngestJob, ok bool, errMsg string) error {
	if ok {
		if err := p.repo.MarkJobSucceeded(ctx, job.ID); err != nil {
			return fmt.Errorf("mark job %s succeeded: %w", job.ID, err)
		}
		p.log.Info("document uploaded", "job_id", job.ID, "course_id", job.CourseID, "filename", job.Filename)
	} else {
		if err := p.repo.MarkJobFailed(ctx, job.ID, errMsg); err != nil {
			return fmt.Errorf("mark job %s failed: %w", job.ID, err)
		}
	}

	if err := os.Remove(job.SpoolPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Warn("remove spool file failed", "job_id", job.ID, "error", err)
	}
	return nil
}

// logUpload is best effort; the job status is what callers poll.
func (p *Processor) logUpload(ctx context.Context, rec *Upload) {
	if err := p.repo.InsertUpload(ctx, rec); err != nil {
		p.log.Warn("insert upload record failed", "job_id", rec.JobID, "error", err)
	}
}

type failure struct {
	Error    string `json:"error"`
	HTTPCode int    `json:"http_code,omitempty"`
}

func failureRecord(msg string, status int) string {
	b, _ := json.Marshal(failure{Error: msg, HTTPCode: status})
	return string(b)
}

// uploadError recovers the message of a logged failed attempt.
func uploadError(u *Upload) string {
	if u.Success {
		return ""
	}
	if u.ResponseData != nil {
		var f failure
		if err := json.Unmarshal([]byte(*u.ResponseData), &f); err == nil && f.Error != "" {
			return f.Error
		}
	}
	return "upload failed"
}
