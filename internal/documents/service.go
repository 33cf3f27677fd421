package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"gorm.io/gorm"

	"github.com/suPer8Hu/learnbot/internal/common"
	"github.com/suPer8Hu/learnbot/internal/gamification"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

const pdfMIME = "application/pdf"

var (
	ErrUnsupportedType = errors.New("only PDF documents are supported")
	ErrJobNotFound     = errors.New("job not found")
	errEmptyJobID      = errors.New("empty job id")
)

type Service struct {
	repo      *Repo
	publisher Publisher
	spoolDir  string
	log       *logger.Logger
}

func NewService(repo *Repo, publisher Publisher, spoolDir string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{repo: repo, publisher: publisher, spoolDir: spoolDir, log: log.With("component", "documents")}
}

// Submit spools a PDF and queues it for upload.
func (s *Service) Submit(ctx context.Context, userID, courseID uint64, filename string, r io.Reader) (*IngestJob, error) {
	if userID == 0 {
		return nil, &gamification.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	if courseID == 0 {
		return nil, &gamification.ValidationError{Field: "course_id", Reason: "required"}
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, &gamification.ValidationError{Field: "file", Reason: "filename required"}
	}

	// sniff the header, then stream header + rest to the spool file
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read document: %w", err)
	}
	head = head[:n]
	if !mimetype.Detect(head).Is(pdfMIME) {
		return nil, fmt.Errorf("%w: %w", &gamification.ValidationError{Field: "file", Reason: "not a PDF"}, ErrUnsupportedType)
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	spoolPath := filepath.Join(s.spoolDir, jobID+".pdf")
	if err := writeSpool(spoolPath, io.MultiReader(strings.NewReader(string(head)), r)); err != nil {
		return nil, err
	}

	job := &IngestJob{
		ID:        jobID,
		UserID:    userID,
		CourseID:  courseID,
		Filename:  filename,
		SpoolPath: spoolPath,
		Status:    JobQueued,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		_ = os.Remove(spoolPath)
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.publisher.PublishJob(ctx, job.ID); err != nil {
		s.log.Error("publish ingest job failed", "job_id", job.ID, "error", err)
		_ = s.repo.MarkJobFailed(ctx, job.ID, "enqueue failed: "+err.Error())
		_ = os.Remove(spoolPath)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Info("document queued", "job_id", job.ID, "user_id", userID, "course_id", courseID, "filename", filename)
	return job, nil
}

// Job returns the caller's job. Jobs of other users look like missing ones.
func (s *Service) Job(ctx context.Context, userID uint64, jobID string) (*IngestJob, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if j.UserID != userID {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// LastAttempt returns the newest logged upload attempt for the job, or nil
// while the worker has not tried yet.
func (s *Service) LastAttempt(ctx context.Context, job *IngestJob) (*Upload, error) {
	return s.repo.LatestUpload(ctx, job.ID)
}

func writeSpool(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write spool file: %w", err)
	}
	return f.Close()
}
