package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/formflow/api/internal/domain"
	"github.com/formflow/api/internal/platform/httpx"
	"github.com/formflow/api/internal/platform/requestctx"
	"github.com/formflow/api/internal/services"
)

const maxWizardRequestBody = 8 * 1024

// WizardHandlers exposes the cross-page wizard state endpoints.
type WizardHandlers struct {
	wizard services.WizardService
}

// NewWizardHandlers constructs wizard handlers over the wizard service.
func NewWizardHandlers(wizard services.WizardService) *WizardHandlers {
	return &WizardHandlers{wizard: wizard}
}

// Routes registers wizard endpoints under the provided router.
func (h *WizardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/wizard/state", h.getState)
	r.Put("/wizard/personal", h.savePersonal)
	r.Put("/wizard/billing", h.applyBilling)
	r.Put("/wizard/plan", h.selectPlan)
	r.Put("/wizard/addons", h.setAddons)
	r.Post("/wizard/addons/{addonId}/toggle", h.toggleAddon)
	r.Post("/wizard/advance", h.advance)
	r.Get("/wizard/summary", h.summary)
}

type personalPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type planPayload struct {
	Name    string `json:"name"`
	Price   int64  `json:"price"`
	Billing string `json:"billing"`
}

type addonPayload struct {
	ID    string `json:"id"`
	Price int64  `json:"price"`
	Title string `json:"title"`
}

type planViewPayload struct {
	Name       string `json:"name"`
	Display    string `json:"display"`
	Price      string `json:"price"`
	FreeMonths bool   `json:"freeMonths"`
	Selected   bool   `json:"selected"`
}

type addonViewPayload struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Price   string `json:"price"`
	Checked bool   `json:"checked"`
}

type surfaceViewPayload struct {
	Surface       string             `json:"surface"`
	Billing       string             `json:"billing"`
	MonthlyActive bool               `json:"monthlyActive"`
	YearlyActive  bool               `json:"yearlyActive"`
	Plans         []planViewPayload  `json:"plans"`
	Addons        []addonViewPayload `json:"addons"`
}

type stateResponse struct {
	SessionID string               `json:"sessionId"`
	Personal  personalPayload      `json:"personal"`
	Billing   string               `json:"billing"`
	Plan      *planPayload         `json:"plan,omitempty"`
	Addons    []addonPayload       `json:"addons"`
	Total     int64                `json:"total"`
	Surfaces  []surfaceViewPayload `json:"surfaces"`
	UpdatedAt string               `json:"updatedAt,omitempty"`
}

type billingRequest struct {
	Billing string `json:"billing"`
}

type planRequest struct {
	Plan string `json:"plan"`
}

type addonsRequest struct {
	Addons []string `json:"addons"`
}

type advanceRequest struct {
	Page string `json:"page"`
}

type advanceResponse struct {
	Allowed       bool     `json:"allowed"`
	Step          int      `json:"step"`
	Message       string   `json:"message,omitempty"`
	InvalidFields []string `json:"invalidFields,omitempty"`
	Focus         string   `json:"focus,omitempty"`
}

type summaryLinePayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price string `json:"price"`
}

type summaryResponse struct {
	PlanLabel  string               `json:"planLabel,omitempty"`
	PlanPrice  string               `json:"planPrice,omitempty"`
	Billing    string               `json:"billing"`
	Addons     []summaryLinePayload `json:"addons"`
	TotalLabel string               `json:"totalLabel"`
	TotalText  string               `json:"totalText"`
	Total      int64                `json:"total"`
}

func (h *WizardHandlers) getState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	snap, err := h.wizard.GetState(ctx, sessionID)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshotPayload(snap))
}

func (h *WizardHandlers) savePersonal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	var req personalPayload
	if !decodeWizardBody(ctx, w, r, &req) {
		return
	}

	snap, err := h.wizard.SavePersonalInfo(ctx, sessionID, domain.PersonalInfo{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshotPayload(snap))
}

func (h *WizardHandlers) applyBilling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	var req billingRequest
	if !decodeWizardBody(ctx, w, r, &req) {
		return
	}

	snap, err := h.wizard.ApplyBilling(ctx, sessionID, req.Billing)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshotPayload(snap))
}

func (h *WizardHandlers) selectPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	var req planRequest
	if !decodeWizardBody(ctx, w, r, &req) {
		return
	}

	snap, err := h.wizard.SelectPlan(ctx, sessionID, req.Plan)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshotPayload(snap))
}

func (h *WizardHandlers) setAddons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	var req addonsRequest
	if !decodeWizardBody(ctx, w, r, &req) {
		return
	}

	snap, err := h.wizard.SetAddons(ctx, sessionID, req.Addons)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshotPayload(snap))
}

func (h *WizardHandlers) toggleAddon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	addonID := strings.TrimSpace(chi.URLParam(r, "addonId"))
	if addonID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "addon id is required", http.StatusBadRequest))
		return
	}

	snap, err := h.wizard.ToggleAddon(ctx, sessionID, addonID)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshotPayload(snap))
}

func (h *WizardHandlers) advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	var req advanceRequest
	if !decodeWizardBody(ctx, w, r, &req) {
		return
	}

	result, err := h.wizard.AdvanceStep(ctx, sessionID, req.Page)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}

	payload := advanceResponse{
		Allowed:       result.Allowed,
		Step:          int(result.Step),
		Message:       result.Message,
		InvalidFields: result.InvalidFields,
		Focus:         result.Focus,
	}
	status := http.StatusOK
	if !result.Allowed {
		status = http.StatusUnprocessableEntity
	}
	writeJSONResponse(w, status, payload)
}

func (h *WizardHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.requireSession(ctx, w)
	if !ok {
		return
	}

	summary, err := h.wizard.Quote(ctx, sessionID)
	if err != nil {
		writeWizardError(ctx, w, err)
		return
	}

	payload := summaryResponse{
		PlanLabel:  summary.PlanLabel,
		PlanPrice:  summary.PlanPriceText,
		Billing:    string(summary.Billing),
		Addons:     make([]summaryLinePayload, 0, len(summary.Addons)),
		TotalLabel: summary.TotalLabel,
		TotalText:  summary.TotalText,
		Total:      summary.Total,
	}
	for _, line := range summary.Addons {
		payload.Addons = append(payload.Addons, summaryLinePayload{
			ID:    string(line.ID),
			Title: line.Title,
			Price: line.PriceText,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *WizardHandlers) requireSession(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h == nil || h.wizard == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wizard_unavailable", "wizard service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	sessionID := strings.TrimSpace(requestctx.SessionID(ctx))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a wizard session is required", http.StatusUnauthorized))
		return "", false
	}
	return sessionID, true
}

func decodeWizardBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := readLimitedBody(r, maxWizardRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeWizardError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWizardInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWizardConflict):
		httpx.WriteError(ctx, w, httpx.NewError("wizard_conflict", "state has changed; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrWizardUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("wizard_unavailable", "wizard service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wizard_error", "failed to process wizard request", http.StatusInternalServerError))
	}
}

func snapshotPayload(snap services.WizardSnapshot) stateResponse {
	state := snap.State

	resp := stateResponse{
		SessionID: state.SessionID,
		Personal: personalPayload{
			Name:  state.Personal.Name,
			Email: state.Personal.Email,
			Phone: state.Personal.Phone,
		},
		Billing:   string(state.EffectiveBilling()),
		Addons:    make([]addonPayload, 0, len(state.Addons)),
		Total:     domain.ComputeTotal(state.Plan, state.Addons),
		Surfaces:  make([]surfaceViewPayload, 0, len(snap.Views)),
		UpdatedAt: formatTime(state.UpdatedAt),
	}

	if state.Plan != nil {
		resp.Plan = &planPayload{
			Name:    string(state.Plan.Name),
			Price:   state.Plan.Price,
			Billing: string(state.Plan.Billing),
		}
	}
	for _, line := range state.Addons {
		resp.Addons = append(resp.Addons, addonPayload{
			ID:    string(line.ID),
			Price: line.Price,
			Title: line.Title,
		})
	}
	for _, view := range snap.Views {
		resp.Surfaces = append(resp.Surfaces, surfacePayload(view))
	}
	return resp
}

func surfacePayload(view domain.SurfaceView) surfaceViewPayload {
	payload := surfaceViewPayload{
		Surface:       string(view.Surface),
		Billing:       string(view.Billing),
		MonthlyActive: view.MonthlyActive,
		YearlyActive:  view.YearlyActive,
		Plans:         make([]planViewPayload, 0, len(view.Plans)),
		Addons:        make([]addonViewPayload, 0, len(view.Addons)),
	}
	for _, plan := range view.Plans {
		payload.Plans = append(payload.Plans, planViewPayload{
			Name:       string(plan.Name),
			Display:    plan.Display,
			Price:      plan.PriceText,
			FreeMonths: plan.FreeMonths,
			Selected:   plan.Selected,
		})
	}
	for _, addon := range view.Addons {
		payload.Addons = append(payload.Addons, addonViewPayload{
			ID:      string(addon.ID),
			Title:   addon.Title,
			Price:   addon.PriceText,
			Checked: addon.Checked,
		})
	}
	return payload
}
