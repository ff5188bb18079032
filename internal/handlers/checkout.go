package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/formflow/api/internal/platform/httpx"
	"github.com/formflow/api/internal/platform/requestctx"
	"github.com/formflow/api/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes the payment handoff endpoints.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers over the checkout service.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout", h.initiate)
	r.Post("/checkout/complete", h.complete)
	r.Post("/checkout/cancel", h.cancel)
}

type initiateResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode,omitempty"`
	Provider         string `json:"provider"`
	AmountMinor      int64  `json:"amountMinor"`
	Currency         string `json:"currency"`
}

type completeRequest struct {
	Reference string `json:"reference"`
}

type completeResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirectUrl"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	CompletedAt string `json:"completedAt,omitempty"`
}

type cancelResponse struct {
	Message string `json:"message"`
}

type blockedResponse struct {
	Message string `json:"message"`
}

func (h *CheckoutHandlers) initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	handoff, err := h.checkout.InitiatePayment(ctx, sessionID)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, initiateResponse{
		Reference:        handoff.Reference,
		AuthorizationURL: handoff.AuthorizationURL,
		AccessCode:       handoff.AccessCode,
		Provider:         handoff.Provider,
		AmountMinor:      handoff.AmountMinor,
		Currency:         handoff.Currency,
	})
}

func (h *CheckoutHandlers) complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req completeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Reference) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "reference is required", http.StatusBadRequest))
		return
	}

	receipt, err := h.checkout.CompletePayment(ctx, sessionID, req.Reference)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, completeResponse{
		Reference:   receipt.Reference,
		RedirectURL: receipt.RedirectURL,
		AmountMinor: receipt.AmountMinor,
		Currency:    receipt.Currency,
		CompletedAt: formatTime(receipt.CompletedAt),
	})
}

func (h *CheckoutHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	notice, err := h.checkout.CancelPayment(ctx, sessionID)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cancelResponse{Message: notice.Message})
}

func (h *CheckoutHandlers) requireSession(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h == nil || h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	sessionID := strings.TrimSpace(requestctx.SessionID(ctx))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a wizard session is required", http.StatusUnauthorized))
		return "", false
	}
	return sessionID, true
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var blocked *services.BlockedError
	switch {
	case errors.As(err, &blocked):
		writeJSONResponse(w, http.StatusUnprocessableEntity, blockedResponse{Message: blocked.Message})
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be completed", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
