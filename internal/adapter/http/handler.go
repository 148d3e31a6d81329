package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipflow/clipflow/internal/adapter/http/validation"
	"github.com/clipflow/clipflow/internal/domain"
	"github.com/clipflow/clipflow/internal/infrastructure/logger"
	"github.com/clipflow/clipflow/internal/port"
	"github.com/clipflow/clipflow/internal/service"
)

// Queue is the slice of the transcode queue the handlers need.
type Queue interface {
	Enqueue(job domain.TranscodeJob) error
	Dequeue(mediaID string) bool
	Info(mediaID string) (*service.ProcessingInfo, error)
}

type Handlers struct {
	store     port.MediaStore
	objects   port.ObjectStore
	uploader  *service.Uploader
	queue     Queue
	bucket    string
	dataDir   string
	maxSizeMB int
}

func NewHandlers(store port.MediaStore, objects port.ObjectStore, uploader *service.Uploader, queue Queue, bucket, dataDir string, maxSizeMB int) *Handlers {
	return &Handlers{
		store:     store,
		objects:   objects,
		uploader:  uploader,
		queue:     queue,
		bucket:    bucket,
		dataDir:   dataDir,
		maxSizeMB: maxSizeMB,
	}
}

// Upload accepts a multipart video, stores the original object, creates the
// metadata row and enqueues the transcode. The response returns before any
// encoding starts.
func (h *Handlers) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := int64(h.maxSizeMB) << 20
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()

		mime, allowed, err := validation.SniffVideo(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload")
			return
		}
		if !allowed {
			logger.Warn.Printf("rejected upload with type %s", logger.SanitizeForLog(mime))
			writeError(w, http.StatusUnsupportedMediaType, "unsupported media type "+mime)
			return
		}

		filename := validation.SanitizeFilename(header.Filename)
		id := uuid.NewString()

		localPath, err := h.saveTemp(id, filename, file)
		if err != nil {
			logger.Error.Printf("save upload: %v", err)
			writeError(w, http.StatusInternalServerError, "could not store upload")
			return
		}

		objectKey := id + "/original" + filepath.Ext(filename)
		if err := h.uploader.UploadFile(r.Context(), h.bucket, objectKey, localPath, mime); err != nil {
			logger.Error.Printf("store original for %s: %v", id, err)
			_ = os.Remove(localPath)
			writeError(w, http.StatusBadGateway, "could not store original")
			return
		}

		item := domain.NewMediaItem(id, filename, h.bucket, objectKey)
		item.Source = domain.LocalSource(localPath)
		if err := h.store.Save(item); err != nil {
			logger.Error.Printf("save media row %s: %v", id, err)
			_ = os.Remove(localPath)
			writeError(w, http.StatusInternalServerError, "could not save media")
			return
		}

		job := domain.TranscodeJob{
			MediaID:  id,
			Source:   domain.LocalSource(localPath),
			Bucket:   h.bucket,
			Filename: filename,
		}
		if err := h.queue.Enqueue(job); err != nil {
			logger.Error.Printf("enqueue %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "could not enqueue transcode")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"id":                id,
			"filename":          filename,
			"processing_status": domain.ProcessingQueued,
		})
	}
}

// Status reports the composite processing info for one item.
func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		info, err := h.queue.Info(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "media not found")
				return
			}
			logger.Error.Printf("status for %s: %v", logger.SanitizeForLog(id), err)
			writeError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// Delete removes an item: out of the queue if it has not started, its live
// row, and (best effort) its storage objects.
func (h *Handlers) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		item, err := h.store.Get(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "media not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}

		dequeued := h.queue.Dequeue(id)

		keys := []string{item.ObjectKey}
		if item.ThumbnailKey != "" {
			keys = append(keys, item.ThumbnailKey)
		}
		if hlsKeys, err := h.objects.ListKeys(r.Context(), h.bucket, item.HLSPrefix()); err == nil {
			keys = append(keys, hlsKeys...)
		}
		if err := h.objects.RemoveAll(r.Context(), h.bucket, keys); err != nil {
			logger.Warn.Printf("delete storage for %s: %v", logger.SanitizeForLog(id), err)
		}

		if err := h.store.Delete(id); err != nil {
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "dequeued": dequeued})
	}
}

// Post transitions an item to the posted lifecycle state and appends the
// historical stat row that survives later reclamation.
func (h *Handlers) Post() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		now := time.Now()
		if err := h.store.MarkPosted(id, now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "media not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "post failed")
			return
		}
		if err := h.store.RecordPostedStat(id, now); err != nil {
			logger.Error.Printf("record posted stat for %s: %v", logger.SanitizeForLog(id), err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "lifecycle_status": domain.LifecyclePosted})
	}
}

// Feedback appends a comment/review record; its timestamp is what keeps a
// posted item alive past the reclamation grace period.
func (h *Handlers) Feedback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var payload struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if strings.TrimSpace(payload.Body) == "" {
			writeError(w, http.StatusBadRequest, "empty feedback")
			return
		}
		if _, err := h.store.Get(id); err != nil {
			writeError(w, http.StatusNotFound, "media not found")
			return
		}
		if err := h.store.AddFeedback(id, payload.Body, time.Now()); err != nil {
			writeError(w, http.StatusInternalServerError, "feedback failed")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	}
}

func (h *Handlers) saveTemp(id, filename string, src io.Reader) (string, error) {
	uploadDir := filepath.Join(h.dataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	localPath := filepath.Join(uploadDir, id+filepath.Ext(filename))
	dst, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(localPath)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return localPath, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
