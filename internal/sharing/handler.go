package sharing

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/models"
	"github.com/nestfolio/backend/pkg/response"
)

// CollectionSource resolves share tokens to collections.
type CollectionSource interface {
	GetByShareToken(ctx context.Context, token string) (*models.Collection, error)
}

// ListingSource lists a collection's listings.
type ListingSource interface {
	ListForCollection(ctx context.Context, collectionID uuid.UUID) ([]models.Listing, error)
}

// PhotoSource lists a listing's photos.
type PhotoSource interface {
	ListForListing(ctx context.Context, listingID uuid.UUID) ([]models.ListingPhoto, error)
}

// Presigner issues download URLs for photo objects. Optional.
type Presigner interface {
	GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
}

// Handler serves the unauthenticated share-link read.
type Handler struct {
	cols     CollectionSource
	listings ListingSource
	photos   PhotoSource
	s3       Presigner
	logger   *zap.Logger
}

// NewHandler creates a sharing handler.
func NewHandler(cols CollectionSource, listings ListingSource, photos PhotoSource, s3 Presigner, logger *zap.Logger) *Handler {
	return &Handler{cols: cols, listings: listings, photos: photos, s3: s3, logger: logger}
}

// Get handles GET /api/shared/:token. Unknown tokens 404; tokens whose
// collection was unshared 403. The view never carries owner ids, the
// token, or the public flag.
func (h *Handler) Get(c *gin.Context) {
	token := c.Param("token")
	col, err := h.cols.GetByShareToken(c.Request.Context(), token)
	if errors.Is(err, collections.ErrNotFound) {
		response.NotFound(c, "shared collection not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load shared collection")
		return
	}
	if !col.IsPublic {
		response.Forbidden(c, "this collection is no longer shared")
		return
	}

	rows, err := h.listings.ListForCollection(c.Request.Context(), col.ID)
	if err != nil {
		response.Internal(c, "failed to load listings")
		return
	}

	view := models.SharedCollection{
		ID:           col.ID,
		Name:         col.Name,
		Description:  col.Description,
		ListingCount: len(rows),
		Listings:     make([]models.SharedListing, 0, len(rows)),
		UpdatedAt:    col.UpdatedAt,
	}
	for _, l := range rows {
		view.Listings = append(view.Listings, models.SharedListing{
			ID:        l.ID,
			Payload:   l.Payload,
			PhotoURLs: h.photoURLs(c.Request.Context(), l.ID),
			CreatedAt: l.CreatedAt,
		})
	}
	response.OK(c, view)
}

func (h *Handler) photoURLs(ctx context.Context, listingID uuid.UUID) []string {
	if h.photos == nil || h.s3 == nil {
		return nil
	}
	rows, err := h.photos.ListForListing(ctx, listingID)
	if err != nil {
		h.logger.Warn("shared view photo lookup failed", zap.String("listing_id", listingID.String()), zap.Error(err))
		return nil
	}
	var urls []string
	for _, p := range rows {
		url, err := h.s3.GeneratePresignedDownloadURL(ctx, p.ObjectKey, h.s3.PresignExpire())
		if err != nil {
			h.logger.Warn("shared view presign failed", zap.String("key", p.ObjectKey), zap.Error(err))
			continue
		}
		urls = append(urls, url)
	}
	return urls
}
