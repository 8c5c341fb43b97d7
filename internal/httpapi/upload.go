// ABOUTME: Multipart upload endpoint that ingests a vendor export file or zip.
// ABOUTME: Responds 201 with the batch on success and 400 with the batch on failure.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/vitals/internal/archive"
	"github.com/harperreed/vitals/internal/models"
)

// Upload accepts a multipart "file" field and an optional "source" name.
func (h *Handler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, NewHTTPError(http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the size limit", err))
			return
		}
		abortWithError(c, badRequest("multipart field \"file\" is required", err))
		return
	}

	source := c.PostForm("source")
	if source != "" && !models.IsValidSource(source) {
		abortWithError(c, badRequest("unknown source \""+source+"\"", nil))
		return
	}

	work, err := os.MkdirTemp("", "vitals-upload-*")
	if err != nil {
		abortWithError(c, internal(err))
		return
	}
	defer os.RemoveAll(work)

	dst := filepath.Join(work, uploadName(fh.Filename))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		abortWithError(c, internal(err))
		return
	}

	path, err := archive.Prepare(dst, work)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_archive", "could not extract archive", err))
		return
	}

	// A client hanging up must not leave the batch stuck in processing.
	batch, err := h.ingest.Ingest(detached(c.Request.Context()), path, source)
	if err != nil {
		abortWithError(c, internal(err))
		return
	}

	h.log.Info("upload ingested", "batch", batch.BatchID, "source", batch.Source, "status", batch.Status, "created", batch.RecordsCreated)
	status := http.StatusCreated
	if batch.Status != models.BatchCompleted {
		status = http.StatusBadRequest
	}
	c.JSON(status, batch)
}

func uploadName(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "upload"
	}
	return base
}

func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
