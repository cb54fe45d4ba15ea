// Subscription HTTP handlers.
//
//   - POST /subscriptions          (subscribe; sends a confirmation email)
//   - GET  /subscriptions/confirm  (confirm with the emailed token)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// SubscribeRequest is the subscription form, accepted as a form or JSON.
type SubscribeRequest struct {
	Name  string `form:"name"  json:"name"  example:"Ursula Le Guin"`
	Email string `form:"email" json:"email" example:"ursula@example.com"`
}

// SubscriptionStatus reports the state of a subscription.
type SubscriptionStatus struct {
	Status string `json:"status" example:"pending_confirmation"`
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Subscribe to the newsletter
// @Description Registers a pending subscriber and emails a confirmation link.
// @Tags        Subscriptions
// @Accept      json,x-www-form-urlencoded
// @Produce     json
//
// @Param       body  body  handlers.SubscribeRequest  true  "Subscriber"
//
// @Success     200  {object}  handlers.SubscriptionStatus
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid name or email"
// @Failure     409  {object}  handlers.ErrorResponse  "Already subscribed"
// @Failure     500  {object}  handlers.ErrorResponse  "Confirmation email failed"
// @Router      /subscriptions [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	_, err := h.subscriptions.Subscribe(c.Request.Context(), req.Name, req.Email)
	switch {
	case err == nil:
		ok(c, http.StatusOK, SubscriptionStatus{Status: domain.StatusPendingConfirmation})
	case errors.Is(err, services.ErrInvalidSubscriber):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrAlreadySubscribed):
		fail(c, http.StatusConflict, ErrCodeConflict, "email already subscribed")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeSubscribeFailed, "failed to register subscription")
	}
}

// ConfirmSubscription godoc
// @ID          confirmSubscription
// @Summary     Confirm a subscription
// @Tags        Subscriptions
// @Produce     json
//
// @Param       subscription_token  query  string  true  "Token from the confirmation email"
//
// @Success     200  {object}  handlers.SubscriptionStatus
// @Failure     400  {object}  handlers.ErrorResponse  "Missing token"
// @Failure     401  {object}  handlers.ErrorResponse  "Unknown token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /subscriptions/confirm [get]
func (h *Handlers) ConfirmSubscription(c *gin.Context) {
	err := h.subscriptions.Confirm(c.Request.Context(), c.Query("subscription_token"))
	switch {
	case err == nil:
		ok(c, http.StatusOK, SubscriptionStatus{Status: domain.StatusConfirmed})
	case errors.Is(err, services.ErrMissingToken):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subscription_token is required")
	case errors.Is(err, services.ErrUnknownToken):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown subscription token")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
