package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
	"github.com/ecofood/foodshare/internal/service"
	"github.com/ecofood/foodshare/internal/validation"
)

type ListingHandler struct {
	lifecycle *service.LifecycleService
}

func NewListingHandler(lifecycle *service.LifecycleService) *ListingHandler {
	return &ListingHandler{
		lifecycle: lifecycle,
	}
}

type listingsResponse struct {
	Listings []*model.Listing `json:"listings"`
}

// claimView adds the pickup code, which only the claiming organization sees.
type claimView struct {
	*model.Listing
	VerificationCode string `json:"verification_code,omitempty"`
}

func claimViews(listings []*model.Listing) []claimView {
	views := make([]claimView, 0, len(listings))
	for _, l := range listings {
		views = append(views, claimView{Listing: l, VerificationCode: l.Code()})
	}
	return views
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *ListingHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req service.PostListingRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		handleError(w, r, "post listing", err)
		return
	}

	listing, err := h.lifecycle.Post(r.Context(), actorFrom(r), req)
	if err != nil {
		handleError(w, r, "post listing", err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

func (h *ListingHandler) Available(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		handleError(w, r, "list available", err)
		return
	}

	listings, err := h.lifecycle.ListAvailable(r.Context(), limit)
	if err != nil {
		handleError(w, r, "list available", err)
		return
	}

	writeJSON(w, http.StatusOK, listingsResponse{Listings: listings})
}

// Nearby expects lat and lng query parameters; radiusKm is optional.
func (h *ListingHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		handleError(w, r, "list nearby", err)
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		handleError(w, r, "list nearby", err)
		return
	}
	if lat == nil || lng == nil {
		handleError(w, r, "list nearby", fmt.Errorf("%w: lat and lng are required", service.ErrValidation))
		return
	}
	radius, err := queryFloat(r, "radiusKm")
	if err != nil {
		handleError(w, r, "list nearby", err)
		return
	}

	radiusKm := 0.0
	if radius != nil {
		radiusKm = *radius
	}

	listings, err := h.lifecycle.ListNearby(r.Context(), geo.Point{Lng: *lng, Lat: *lat}, radiusKm)
	if err != nil {
		handleError(w, r, "list nearby", err)
		return
	}

	writeJSON(w, http.StatusOK, listingsResponse{Listings: listings})
}

func (h *ListingHandler) MyDonations(w http.ResponseWriter, r *http.Request) {
	listings, err := h.lifecycle.MyDonations(r.Context(), actorFrom(r))
	if err != nil {
		handleError(w, r, "list donations", err)
		return
	}
	writeJSON(w, http.StatusOK, listingsResponse{Listings: listings})
}

func (h *ListingHandler) MyClaims(w http.ResponseWriter, r *http.Request) {
	listings, err := h.lifecycle.MyClaims(r.Context(), actorFrom(r))
	if err != nil {
		handleError(w, r, "list claims", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]claimView{"listings": claimViews(listings)})
}

func (h *ListingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	listing, err := h.lifecycle.Claim(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, "claim listing", err)
		return
	}
	writeJSON(w, http.StatusOK, claimView{Listing: listing, VerificationCode: listing.Code()})
}

func (h *ListingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		handleError(w, r, "verify pickup", err)
		return
	}

	listing, err := h.lifecycle.Verify(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		handleError(w, r, "verify pickup", err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// UploadImage takes a multipart form with the photo in the "image" field.
func (h *ListingHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.ListingImage.MaxSize+(1<<20))
	err := r.ParseMultipartForm(validation.ListingImage.MaxSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image uploaded")
		return
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			slog.Error("failed to close file", "error", closeErr)
		}
	}()

	contentType, err := validation.ValidateImage(file, header, validation.ListingImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.lifecycle.AttachImage(
		r.Context(),
		actorFrom(r),
		chi.URLParam(r, "id"),
		file,
		contentType,
		validation.ListingImage.ImageExtension(contentType),
	)
	if err != nil {
		handleError(w, r, "upload image", err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingHandler) Impact(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lifecycle.Impact(r.Context())
	if err != nil {
		handleError(w, r, "impact stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ListingHandler) Remove(w http.ResponseWriter, r *http.Request) {
	err := h.lifecycle.Remove(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, "remove listing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
