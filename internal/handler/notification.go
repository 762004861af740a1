package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecofood/foodshare/internal/service"
)

type NotificationHandler struct {
	inbox *service.InboxService
}

func NewNotificationHandler(inbox *service.InboxService) *NotificationHandler {
	return &NotificationHandler{
		inbox: inbox,
	}
}

type countResponse struct {
	Count int64 `json:"count"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		handleError(w, r, "list notifications", err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		handleError(w, r, "list notifications", err)
		return
	}

	inbox, err := h.inbox.List(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		handleError(w, r, "list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	unread, err := h.inbox.UnreadCount(r.Context(), actorFrom(r))
	if err != nil {
		handleError(w, r, "count notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: int64(unread)})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	err := h.inbox.MarkRead(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, "mark notification read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.inbox.MarkAllRead(r.Context(), actorFrom(r))
	if err != nil {
		handleError(w, r, "mark notifications read", err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.inbox.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, "delete notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.inbox.DeleteAll(r.Context(), actorFrom(r))
	if err != nil {
		handleError(w, r, "delete notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}
