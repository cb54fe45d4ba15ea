// Newsletter HTTP handlers.
//
// This file exposes the operator endpoints:
//   - POST /admin/newsletters       (publish, idempotent per operator and key)
//   - GET  /admin/newsletters       (list, paginated)
//   - GET  /admin/newsletters/{id}  (issue with delivery progress, ETag support)
//
// Handlers stay thin: they bind input, call the services, and translate
// results and sentinel errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/idempotency"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/utils"
)

// NewsletterService is the publish command handler plus issue queries.
// Implementations must be safe for concurrent use.
type NewsletterService interface {
	Publish(ctx context.Context, in services.PublishInput) (*services.PublishResult, error)
	Get(ctx context.Context, id string) (*services.IssueDetails, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error)
}

// SubscriptionService registers and confirms subscribers.
type SubscriptionService interface {
	Subscribe(ctx context.Context, name, email string) (*domain.Subscriber, error)
	Confirm(ctx context.Context, token string) error
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	newsletters   NewsletterService
	subscriptions SubscriptionService
}

// New returns Handlers bound to the given services.
func New(newsletters NewsletterService, subscriptions SubscriptionService) *Handlers {
	return &Handlers{newsletters: newsletters, subscriptions: subscriptions}
}

//
// DTOs
//

// PublishRequest is the publish payload, accepted as a form or JSON. The
// idempotency key may arrive in the Idempotency-Key header instead.
type PublishRequest struct {
	Title          string `form:"title"           json:"title"           example:"October issue"`
	HTMLContent    string `form:"html_content"    json:"html_content"    example:"<p>Hello readers</p>"`
	TextContent    string `form:"text_content"    json:"text_content"    example:"Hello readers"`
	IdempotencyKey string `form:"idempotency_key" json:"idempotency_key" example:"5b0f6a57-publish"`
}

// PublishAccepted documents the 202 body of a publish.
type PublishAccepted = services.AcceptedBody

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListIssuesResponse wraps a page of issues.
type ListIssuesResponse struct {
	Issues     []domain.NewsletterIssue `json:"issues"`
	Pagination Pagination               `json:"pagination"`
}

// IssueResponse is an issue with its outstanding deliveries.
type IssueResponse struct {
	domain.NewsletterIssue
	PendingDeliveries int64      `json:"pending_deliveries"`
	LastEnqueuedAt    *time.Time `json:"last_enqueued_at,omitempty"`
}

//
// Handlers
//

// PublishNewsletter godoc
// @ID          publishNewsletter
// @Summary     Publish a newsletter issue
// @Description Creates an issue and queues one delivery per confirmed subscriber. Retries with the same idempotency key return the saved response without side effects.
// @Tags        Newsletters
// @Accept      json,x-www-form-urlencoded
// @Produce     json
//
// @Param       X-User-ID        header  string  true   "Operator identity"  example(admin)
// @Param       Idempotency-Key  header  string  false  "Idempotency key (overrides body field)"
// @Param       body             body    handlers.PublishRequest  true  "Issue content"
//
// @Success     202  {object}  handlers.PublishAccepted
// @Header      202  {string}  Location              "Issue URL"
// @Header      202  {string}  Idempotency-Replayed  "true when served from the ledger"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing operator identity"
// @Failure     409  {object}  handlers.ErrorResponse  "Same key still in flight"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Publish failed"
// @Router      /admin/newsletters [post]
func (h *Handlers) PublishNewsletter(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	key, fromHeader := middleware.GetIdempotencyKey(c)
	if !fromHeader {
		key = req.IdempotencyKey
	}

	res, err := h.newsletters.Publish(c.Request.Context(), services.PublishInput{
		UserID:         middleware.UserID(c),
		Title:          req.Title,
		HTMLContent:    req.HTMLContent,
		TextContent:    req.TextContent,
		IdempotencyKey: key,
	})
	switch {
	case err == nil:
	case errors.Is(err, idempotency.ErrInvalidKey):
		fail(c, http.StatusBadRequest, ErrCodeBadIdempotencyKey, err.Error())
		return
	case errors.Is(err, services.ErrInvalidTitle), errors.Is(err, services.ErrEmptyContent):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, idempotency.ErrInFlight):
		c.Header("Retry-After", "1")
		fail(c, http.StatusConflict, ErrCodeConflict, "a request with this idempotency key is still being processed")
		return
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodePublishFailed, "failed to publish newsletter issue")
		return
	}

	if res.Replayed {
		middleware.LoggerFrom(c).Info().Msg("publish replayed from idempotency ledger")
	}
	writeSaved(c, res.Response, res.Replayed)
}

// ListNewsletters godoc
// @ID          listNewsletters
// @Summary     List newsletter issues
// @Description Returns a page of issues, newest first.
// @Tags        Newsletters
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "Operator identity"  example(admin)
// @Param       page       query   int     false  "Page number"        minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"     minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListIssuesResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing operator identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/newsletters [get]
func (h *Handlers) ListNewsletters(c *gin.Context) {
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	items, total, err := h.newsletters.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListIssuesResponse{
		Issues: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetNewsletter godoc
// @ID          getNewsletter
// @Summary     Get a newsletter issue
// @Description Returns the issue and how many deliveries are still pending. Supports weak ETag via If-None-Match.
// @Tags        Newsletters
// @Produce     json
//
// @Param       X-User-ID      header  string  true   "Operator identity"  example(admin)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       id             path    string  true   "Issue ID (UUID)"    format(uuid)
//
// @Success     200  {object}  handlers.IssueResponse
// @Header      200  {string}  ETag  "Weak ETag over delivery progress"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Issue not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/newsletters/{id} [get]
func (h *Handlers) GetNewsletter(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "issue id must be a UUID")
		return
	}

	d, err := h.newsletters.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrIssueNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "newsletter issue not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	etag := issueETag(d)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, IssueResponse{
		NewsletterIssue:   d.Issue,
		PendingDeliveries: d.PendingDeliveries,
		LastEnqueuedAt:    d.LastEnqueuedAt,
	})
}

// issueETag changes whenever a delivery is settled or a task is enqueued.
func issueETag(d *services.IssueDetails) string {
	var ts int64
	if d.LastEnqueuedAt != nil {
		ts = d.LastEnqueuedAt.UnixNano()
	}
	return fmt.Sprintf(`W/"issue:%s:%d:%d"`, d.Issue.ID, d.PendingDeliveries, ts)
}
