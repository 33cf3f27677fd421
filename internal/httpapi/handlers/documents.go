package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/learnbot/internal/common"
	"github.com/suPer8Hu/learnbot/internal/documents"
)

// UploadDocument accepts a PDF and queues it for the upstream loader.
func (h *Handler) UploadDocument(c *gin.Context) {
	sc, okk := requireSession(c)
	if !okk {
		return
	}
	if h.DocSvc == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50302, "document ingestion disabled")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			common.Fail(c, http.StatusRequestEntityTooLarge, 41301, "file too large")
			return
		}
		common.Fail(c, http.StatusBadRequest, 10003, "file required")
		return
	}

	courseID := sc.CourseID
	if s := c.PostForm("course_id"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid course_id")
			return
		}
		courseID = n
	}

	f, err := fh.Open()
	if err != nil {
		h.writeError(c, "open upload", err)
		return
	}
	defer f.Close()

	job, err := h.DocSvc.Submit(c.Request.Context(), sc.UserID, courseID, fh.Filename, f)
	if err != nil {
		h.writeError(c, "submit document", err)
		return
	}

	common.Respond(c, http.StatusAccepted, "document queued", gin.H{"job_id": job.ID})
}

func (h *Handler) GetDocumentJob(c *gin.Context) {
	sc, okk := requireSession(c)
	if !okk {
		return
	}
	if h.DocSvc == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50302, "document ingestion disabled")
		return
	}

	j, err := h.DocSvc.Job(c.Request.Context(), sc.UserID, c.Param("job_id"))
	if err != nil {
		if errors.Is(err, documents.ErrJobNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		h.writeError(c, "get document job", err)
		return
	}

	last, err := h.DocSvc.LastAttempt(c.Request.Context(), j)
	if err != nil {
		h.writeError(c, "get upload attempt", err)
		return
	}

	job := gin.H{
		"id":         j.ID,
		"course_id":  j.CourseID,
		"filename":   j.Filename,
		"status":     j.Status,
		"error":      j.Error,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
		"upload":     nil,
	}
	if last != nil {
		upload := gin.H{
			"success":    last.Success,
			"created_at": last.CreatedAt,
		}
		if last.ResponseData != nil && json.Valid([]byte(*last.ResponseData)) {
			upload["response_data"] = json.RawMessage(*last.ResponseData)
		}
		job["upload"] = upload
	}

	common.OK(c, "ok", gin.H{"job": job})
}
