// Package httpapi exposes the bounty engine over REST. The API is a thin
// transport layer: it decodes requests, delegates to the services and maps
// service errors onto HTTP status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app"
	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/services/bounties"
	"github.com/PrismoFinance/bounties/internal/app/services/execution"
	"github.com/PrismoFinance/bounties/internal/app/services/triggers"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

// senderHeader identifies the acting principal. Authentication itself is the
// responsibility of the gateway in front of this service.
const senderHeader = "X-Sender"

// Handler serves the REST API.
type Handler struct {
	app *app.Application
	log *logger.Logger
}

// New constructs the API handler.
func New(application *app.Application, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{app: application, log: log}
}

// Router builds the chi router with all routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestID)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/bounties", func(r chi.Router) {
			r.Post("/", h.createBounty)
			r.Get("/", h.listBounties)
			r.Get("/{id}", h.getBounty)
			r.Patch("/{id}", h.updateBounty)
			r.Delete("/{id}", h.cancelBounty)
			r.Post("/{id}/deposits", h.deposit)
			r.Get("/{id}/events", h.listBountyEvents)
			r.Get("/{id}/performance", h.getPerformance)
			r.Post("/{id}/escrow/disbursements", h.disburseEscrow)
		})
		r.Route("/triggers", func(r chi.Router) {
			r.Post("/{id}/executions", h.executeTrigger)
			r.Get("/time", h.listTimeTriggersDue)
			r.Get("/by-order/{orderIdx}", h.getTriggerByOrderIdx)
		})
		r.Get("/events", h.listEvents)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// requestID tags each request with an id for log correlation.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		h.log.WithField("request_id", id).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Debug("request received")
		next.ServeHTTP(w, r)
	})
}

type destinationRequest struct {
	Address    string          `json:"address"`
	Allocation decimal.Decimal `json:"allocation"`
	Action     string          `json:"action"`
}

type createBountyRequest struct {
	Owner        string               `json:"owner"`
	Label        string               `json:"label"`
	Destinations []destinationRequest `json:"destinations"`
	Funds        []bounty.Coin        `json:"funds"`

	PairAddress  string `json:"pair_address"`
	SwapAmount   int64  `json:"swap_amount"`
	PositionType string `json:"position_type"`
	TimeInterval string `json:"time_interval"`

	SlippageTolerance *decimal.Decimal `json:"slippage_tolerance,omitempty"`
	PriceThreshold    *decimal.Decimal `json:"price_threshold,omitempty"`
	TargetStartTime   *time.Time       `json:"target_start_time,omitempty"`
	TargetPrice       *decimal.Decimal `json:"target_price,omitempty"`

	TargetReceiveAmount  *int64 `json:"target_receive_amount,omitempty"`
	MinimumReceiveAmount *int64 `json:"minimum_receive_amount,omitempty"`
}

func (h *Handler) createBounty(w http.ResponseWriter, r *http.Request) {
	var req createBountyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	interval, err := time.ParseDuration(req.TimeInterval)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid time_interval"))
		return
	}

	destinations := make([]bounty.Destination, 0, len(req.Destinations))
	for _, d := range req.Destinations {
		destinations = append(destinations, bounty.Destination{
			Address:    d.Address,
			Allocation: d.Allocation,
			Action:     bounty.PostExecutionAction(d.Action),
		})
	}

	owner := req.Owner
	if owner == "" {
		owner = r.Header.Get(senderHeader)
	}

	created, err := h.app.Bounties.Create(r.Context(), bounties.CreateRequest{
		Owner:                owner,
		Label:                req.Label,
		Destinations:         destinations,
		Funds:                req.Funds,
		PairAddress:          req.PairAddress,
		SwapAmount:           req.SwapAmount,
		PositionType:         bounty.PositionType(req.PositionType),
		SlippageTolerance:    req.SlippageTolerance,
		PriceThreshold:       req.PriceThreshold,
		TimeInterval:         interval,
		TargetStartTime:      req.TargetStartTime,
		TargetPrice:          req.TargetPrice,
		TargetReceiveAmount:  req.TargetReceiveAmount,
		MinimumReceiveAmount: req.MinimumReceiveAmount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getBounty(w http.ResponseWriter, r *http.Request) {
	b, err := h.app.Bounties.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) listBounties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if owner := q.Get("owner"); owner != "" {
		var status *bounty.Status
		if raw := q.Get("status"); raw != "" {
			s := bounty.Status(raw)
			status = &s
		}
		result, err := h.app.Bounties.ListByOwner(r.Context(), owner, status)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	limit := intQuery(q.Get("limit"), 50)
	result, err := h.app.Bounties.List(r.Context(), q.Get("start_after"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type updateBountyRequest struct {
	Label                *string               `json:"label,omitempty"`
	Destinations         *[]destinationRequest `json:"destinations,omitempty"`
	SlippageTolerance    *decimal.Decimal      `json:"slippage_tolerance,omitempty"`
	MinimumReceiveAmount *int64                `json:"minimum_receive_amount,omitempty"`
	SwapAmount           *int64                `json:"swap_amount,omitempty"`
	TimeInterval         *string               `json:"time_interval,omitempty"`
}

func (h *Handler) updateBounty(w http.ResponseWriter, r *http.Request) {
	var req updateBountyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	update := bounties.UpdateRequest{
		Label:                req.Label,
		SlippageTolerance:    req.SlippageTolerance,
		MinimumReceiveAmount: req.MinimumReceiveAmount,
		SwapAmount:           req.SwapAmount,
	}
	if req.Destinations != nil {
		destinations := make([]bounty.Destination, 0, len(*req.Destinations))
		for _, d := range *req.Destinations {
			destinations = append(destinations, bounty.Destination{
				Address:    d.Address,
				Allocation: d.Allocation,
				Action:     bounty.PostExecutionAction(d.Action),
			})
		}
		update.Destinations = destinations
	}
	if req.TimeInterval != nil {
		interval, err := time.ParseDuration(*req.TimeInterval)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid time_interval"))
			return
		}
		update.TimeInterval = &interval
	}

	b, err := h.app.Bounties.Update(r.Context(), chi.URLParam(r, "id"), r.Header.Get(senderHeader), update)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) getPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.app.Execution.Performance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (h *Handler) cancelBounty(w http.ResponseWriter, r *http.Request) {
	b, err := h.app.Bounties.Cancel(r.Context(), chi.URLParam(r, "id"), r.Header.Get(senderHeader))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type depositRequest struct {
	Funds []bounty.Coin `json:"funds"`
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := h.app.Bounties.Deposit(r.Context(), chi.URLParam(r, "id"), r.Header.Get(senderHeader), req.Funds)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) executeTrigger(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.app.Execution.ExecuteTrigger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) disburseEscrow(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.app.Execution.DisburseEscrow(r.Context(), chi.URLParam(r, "id"), r.Header.Get(senderHeader))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) listBountyEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.app.Events.ListByResource(
		r.Context(),
		chi.URLParam(r, "id"),
		int64Query(q.Get("start_after")),
		intQuery(q.Get("limit"), 100),
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.app.Events.List(r.Context(), int64Query(q.Get("start_after")), intQuery(q.Get("limit"), 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listTimeTriggersDue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	before := time.Now().UTC()
	if raw := q.Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid before timestamp"))
			return
		}
		before = parsed
	}
	due, err := h.app.Triggers.ListTimeTriggersDue(r.Context(), before, intQuery(q.Get("limit"), 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ids := make([]string, 0, len(due))
	for _, trg := range due {
		ids = append(ids, trg.BountyID)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"trigger_ids": ids})
}

func (h *Handler) getTriggerByOrderIdx(w http.ResponseWriter, r *http.Request) {
	orderIdx, err := strconv.ParseUint(chi.URLParam(r, "orderIdx"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid order index"))
		return
	}
	trg, err := h.app.Triggers.GetByOrderIdx(r.Context(), orderIdx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"trigger_id": trg.BountyID})
}

// Helpers ------------------------------------------------------------------

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bounties.ErrBountyNotFound),
		errors.Is(err, execution.ErrBountyNotFound),
		errors.Is(err, execution.ErrTriggerNotFound),
		errors.Is(err, triggers.ErrTriggerNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, bounties.ErrUnauthorized), errors.Is(err, execution.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, execution.ErrBountyCancelled),
		errors.Is(err, execution.ErrTriggerNotReady),
		errors.Is(err, execution.ErrEscrowNotDue):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func int64Query(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
