package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecofood/foodshare/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type locationRequest struct {
	Lng *float64 `json:"lng"`
	Lat *float64 `json:"lat"`
}

type approvalRequest struct {
	Approval string `json:"approval"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.ByID(r.Context(), actorFrom(r).ID)
	if err != nil {
		handleError(w, r, "load account", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		handleError(w, r, "update location", err)
		return
	}

	account, err := h.accountService.UpdateLocation(r.Context(), actorFrom(r), req.Lng, req.Lat)
	if err != nil {
		handleError(w, r, "update location", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// SetApproval is the moderator's approve/reject action on an organization.
func (h *AccountHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		handleError(w, r, "set approval", err)
		return
	}

	account, err := h.accountService.SetApproval(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Approval)
	if err != nil {
		handleError(w, r, "set approval", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		handleError(w, r, "set active", err)
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	account, err := h.accountService.SetActive(r.Context(), actorFrom(r), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		handleError(w, r, "set active", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
