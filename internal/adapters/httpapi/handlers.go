package httpapi

import (
	"net/http"
	"strconv"

	"datamarket/internal/core"
	"datamarket/pkg/domain"

	"github.com/go-chi/chi/v5"
)

const defaultEventPage = 100

func principal(r *http.Request) core.Principal {
	return core.Principal(r.Header.Get(PrincipalHeader))
}

func (h *Handler) getPlatform(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetPlatformConfig(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) initializePlatform(w http.ResponseWriter, r *http.Request) {
	var req core.PlatformInit
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, _, err := h.service.InitializePlatform(r.Context(), principal(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *Handler) updatePlatform(w http.ResponseWriter, r *http.Request) {
	var req core.ConfigUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, _, err := h.service.SetPlatformConfig(r.Context(), principal(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) listDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.service.ListDatasets(r.Context(), core.Principal(r.URL.Query().Get("owner")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (h *Handler) registerDataset(w http.ResponseWriter, r *http.Request) {
	var req core.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	dataset, _, err := h.service.Register(r.Context(), principal(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/datasets/"+dataset.ID)
	writeJSON(w, http.StatusCreated, dataset)
}

func (h *Handler) getDataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.service.GetDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *Handler) updateDataset(w http.ResponseWriter, r *http.Request) {
	var req core.UpdateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	dataset, _, err := h.service.UpdateDataset(r.Context(), principal(r), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *Handler) closeDataset(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.CloseDataset(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type hashRequest struct {
	Hash string `json:"hash"`
}

func (h *Handler) updateHash(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dataset, _, err := h.service.UpdateHash(r.Context(), principal(r), chi.URLParam(r, "id"), req.Hash)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *Handler) verifyDataset(w http.ResponseWriter, r *http.Request) {
	var req core.VerifyInput
	if !decodeJSON(w, r, &req) {
		return
	}
	dataset, _, err := h.service.Verify(r.Context(), principal(r), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.service.ListPurchases(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

type purchaseRequest struct {
	Payment uint64 `json:"payment"`
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, _, err := h.service.Purchase(r.Context(), principal(r), chi.URLParam(r, "id"), req.Payment)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/purchases/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) verifyAccess(w http.ResponseWriter, r *http.Request) {
	t := domain.AccessType(r.URL.Query().Get("type"))
	access, err := h.service.VerifyAccess(r.Context(), principal(r), chi.URLParam(r, "id"), t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

type accessRequest struct {
	Type      domain.AccessType `json:"type"`
	RequestID string            `json:"request_id"`
}

// recordAccess falls back to the X-Request-Id of the call, so a client retry
// carrying the same header is recorded once.
func (h *Handler) recordAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = requestIDFromContext(r.Context())
	}
	p, _, err := h.service.RecordAccess(r.Context(), principal(r), chi.URLParam(r, "id"), req.Type, req.RequestID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPurchase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type balanceResponse struct {
	Principal core.Principal `json:"principal"`
	Balance   uint64         `json:"balance"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	who := core.Principal(chi.URLParam(r, "principal"))
	balance, err := h.service.Balance(r.Context(), who)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Principal: who, Balance: balance})
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

// deposit credits the path principal from outside the ledger.
func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, _, err := h.service.Deposit(r.Context(), core.Principal(chi.URLParam(r, "principal")), req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// withdraw only lets a principal move its own balance out.
func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	who := core.Principal(chi.URLParam(r, "principal"))
	if principal(r) != who {
		h.writeServiceError(w, r, domain.NewError(domain.CodeUnauthorized, "%s may not withdraw from %s", principal(r), who))
		return
	}
	entry, _, err := h.service.Withdraw(r.Context(), who, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Ledger(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "after must be an unsigned integer")
			return
		}
		after = v
	}
	limit := defaultEventPage
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_query", "limit must be a positive integer")
			return
		}
		limit = v
	}
	evts, err := h.service.Events(r.Context(), after, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	next := after
	if n := len(evts); n > 0 {
		next = evts[n-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts, "next_after": next})
}
