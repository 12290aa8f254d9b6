package photos

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/listings"
	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/response"
	"github.com/nestfolio/backend/pkg/storage"
)

// Store is the persistence surface the handler needs.
type Store interface {
	Create(ctx context.Context, listingID uuid.UUID, objectKey, fileName, contentType string, sizeBytes int64) (*models.ListingPhoto, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ListingPhoto, error)
	ListForListing(ctx context.Context, listingID uuid.UUID) ([]models.ListingPhoto, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ObjectStore is the S3 surface the handler needs. A nil ObjectStore
// means photo storage is not configured and the endpoints degrade to
// ServiceUnavailable.
type ObjectStore interface {
	GeneratePresignedUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	UploadPhoto(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
	HeadPhoto(ctx context.Context, key string) (int64, string, error)
	DeletePhoto(ctx context.Context, key string) error
	PresignExpire() time.Duration
}

// ListingSource loads listings for access resolution.
type ListingSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// CollectionSource loads the parent collection for access checks.
type CollectionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
}

// CleanupQueue defers S3 object deletion to the worker.
type CleanupQueue interface {
	EnqueuePhotoCleanup(ctx context.Context, keys []string) error
}

// Handler handles listing photo HTTP endpoints.
type Handler struct {
	store    Store
	s3       ObjectStore
	listings ListingSource
	cols     CollectionSource
	access   *collections.Access
	cleanup  CleanupQueue
	logger   *zap.Logger
}

// NewHandler creates a photos handler.
func NewHandler(store Store, s3 ObjectStore, listingSrc ListingSource, cols CollectionSource, access *collections.Access, cleanup CleanupQueue, logger *zap.Logger) *Handler {
	return &Handler{store: store, s3: s3, listings: listingSrc, cols: cols, access: access, cleanup: cleanup, logger: logger}
}

func (h *Handler) storageReady(c *gin.Context) bool {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "photo storage is not configured")
		return false
	}
	return true
}

// loadListing resolves :id to a listing and its collection, writing
// 400/404 itself.
func (h *Handler) loadListing(c *gin.Context) (*models.Listing, *models.Collection, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid listing id")
		return nil, nil, false
	}
	l, err := h.listings.GetByID(c.Request.Context(), id)
	if errors.Is(err, listings.ErrNotFound) {
		response.NotFound(c, "listing not found")
		return nil, nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load listing")
		return nil, nil, false
	}
	col, err := h.cols.GetByID(c.Request.Context(), l.CollectionID)
	if err != nil {
		response.Internal(c, "failed to load collection")
		return nil, nil, false
	}
	return l, col, true
}

func (h *Handler) requireEdit(c *gin.Context, col *models.Collection) bool {
	allowed, err := h.access.CanContribute(c.Request.Context(), col, middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return false
	}
	if !allowed {
		response.Forbidden(c, "you cannot manage photos for this listing")
		return false
	}
	return true
}

// UploadURLRequest is the body for POST /api/listings/:id/photos/upload-url.
type UploadURLRequest struct {
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type"`
}

// UploadURLResponse carries the presigned PUT target.
type UploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

// UploadURL handles POST /api/listings/:id/photos/upload-url. The client
// PUTs the file straight to S3 and then records it with CreatePhoto.
func (h *Handler) UploadURL(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	l, col, ok := h.loadListing(c)
	if !ok {
		return
	}
	if !h.requireEdit(c, col) {
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "file_name is required")
		return
	}
	if req.ContentType == "" {
		req.ContentType = storage.ContentTypeForFilename(req.FileName)
	}
	if !storage.ValidatePhotoType(req.ContentType, req.FileName) {
		response.BadRequest(c, "unsupported image type")
		return
	}
	ext := storage.ExtForContentType(req.ContentType)
	key := storage.PhotoKey(l.ID.String(), uuid.NewString(), ext)

	expires := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), key, req.ContentType, expires)
	if err != nil {
		h.logger.Error("presign upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to create upload url")
		return
	}
	response.OK(c, UploadURLResponse{
		UploadURL: url,
		ObjectKey: key,
		ExpiresIn: int(expires.Seconds()),
	})
}

// CreateRequest is the body for POST /api/listings/:id/photos.
type CreateRequest struct {
	ObjectKey   string `json:"object_key" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Create handles POST /api/listings/:id/photos. Confirms the object was
// actually uploaded before recording it; the stored size and content
// type come from S3, not the client.
func (h *Handler) Create(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	l, col, ok := h.loadListing(c)
	if !ok {
		return
	}
	if !h.requireEdit(c, col) {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "object_key and file_name are required")
		return
	}
	// keys are scoped per listing; a foreign key cannot be attached here
	if !strings.HasPrefix(req.ObjectKey, storage.PhotoKey(l.ID.String(), "", "")+"/") {
		response.BadRequest(c, "object_key does not belong to this listing")
		return
	}
	size, contentType, err := h.s3.HeadPhoto(c.Request.Context(), req.ObjectKey)
	if err != nil {
		response.BadRequest(c, "no uploaded object found for this key")
		return
	}
	if contentType == "" {
		contentType = req.ContentType
	}
	if size > storage.MaxPhotoSize {
		response.BadRequest(c, "photo exceeds the size limit")
		return
	}
	p, err := h.store.Create(c.Request.Context(), l.ID, req.ObjectKey, req.FileName, contentType, size)
	if err != nil {
		response.Internal(c, "failed to record photo")
		return
	}
	response.Created(c, p)
}

// Upload handles POST /api/listings/:id/photos/upload, the server-side
// path for clients that cannot PUT to S3 directly. Streams the multipart
// file through without buffering it in memory.
func (h *Handler) Upload(c *gin.Context) {
	if !h.storageReady(c) {
		return
	}
	l, col, ok := h.loadListing(c)
	if !ok {
		return
	}
	if !h.requireEdit(c, col) {
		return
	}
	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		response.BadRequest(c, "photo file is required")
		return
	}
	defer file.Close()

	if header.Size > storage.MaxPhotoSize {
		response.BadRequest(c, "photo exceeds the size limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(header.Filename)
	}
	if !storage.ValidatePhotoType(contentType, header.Filename) {
		response.BadRequest(c, "unsupported image type")
		return
	}
	ext := storage.ExtForContentType(contentType)
	key := storage.PhotoKey(l.ID.String(), uuid.NewString(), ext)

	if err := h.s3.UploadPhoto(c.Request.Context(), key, contentType, file, header.Size); err != nil {
		h.logger.Error("photo upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to upload photo")
		return
	}
	p, err := h.store.Create(c.Request.Context(), l.ID, key, header.Filename, contentType, header.Size)
	if err != nil {
		response.Internal(c, "failed to record photo")
		return
	}
	response.Created(c, p)
}

// PhotoView is a photo row plus its presigned download URL.
type PhotoView struct {
	models.ListingPhoto
	URL string `json:"url,omitempty"`
}

// List handles GET /api/listings/:id/photos.
func (h *Handler) List(c *gin.Context) {
	l, col, ok := h.loadListing(c)
	if !ok {
		return
	}
	allowed, err := h.access.CanView(c.Request.Context(), col, middleware.UserID(c), middleware.IsAdmin(c))
	if err != nil {
		response.Internal(c, "failed to check collection access")
		return
	}
	if !allowed {
		response.Forbidden(c, "you cannot view this listing")
		return
	}
	rows, err := h.store.ListForListing(c.Request.Context(), l.ID)
	if err != nil {
		response.Internal(c, "failed to list photos")
		return
	}
	out := make([]PhotoView, 0, len(rows))
	for _, p := range rows {
		view := PhotoView{ListingPhoto: p}
		if h.s3 != nil {
			url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), p.ObjectKey, h.s3.PresignExpire())
			if err != nil {
				h.logger.Warn("presign download failed", zap.String("key", p.ObjectKey), zap.Error(err))
			} else {
				view.URL = url
			}
		}
		out = append(out, view)
	}
	response.OK(c, out)
}

// Delete handles DELETE /api/photos/:photoId. The S3 object is removed
// by the cleanup worker; the row goes away immediately either way.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("photoId"))
	if err != nil {
		response.BadRequest(c, "invalid photo id")
		return
	}
	p, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "photo not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load photo")
		return
	}
	l, err := h.listings.GetByID(c.Request.Context(), p.ListingID)
	if err != nil {
		response.Internal(c, "failed to load listing")
		return
	}
	col, err := h.cols.GetByID(c.Request.Context(), l.CollectionID)
	if err != nil {
		response.Internal(c, "failed to load collection")
		return
	}
	if !h.requireEdit(c, col) {
		return
	}
	if err := h.store.Delete(c.Request.Context(), p.ID); err != nil {
		response.Internal(c, "failed to delete photo")
		return
	}
	if h.cleanup != nil {
		if err := h.cleanup.EnqueuePhotoCleanup(c.Request.Context(), []string{p.ObjectKey}); err != nil {
			h.logger.Warn("photo cleanup enqueue failed, deleting inline",
				zap.String("key", p.ObjectKey), zap.Error(err))
			h.deleteInline(c.Request.Context(), p.ObjectKey)
		}
	} else {
		h.deleteInline(c.Request.Context(), p.ObjectKey)
	}
	response.NoContent(c)
}

func (h *Handler) deleteInline(ctx context.Context, key string) {
	if h.s3 == nil {
		return
	}
	if err := h.s3.DeletePhoto(ctx, key); err != nil {
		h.logger.Error("s3 photo delete failed", zap.String("key", key), zap.Error(err))
	}
}
