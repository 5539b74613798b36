package httpapi

import (
	"net/http"
	"time"

	"slotbase.org/internal/auth"
)

type createBusinessRequest struct {
	Name string `json:"name"`
}

type businessResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *API) handleCreateBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthenticated)
		return
	}
	var req createBusinessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	biz, err := a.auth.CreateBusiness(r.Context(), id.UserID, req.Name)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, businessResponse{ID: biz.ID, Name: biz.Name, CreatedAt: biz.CreatedAt})
}

func (a *API) handleMyBusinesses(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthenticated)
		return
	}

	list, err := a.auth.MyBusinesses(r.Context(), id.UserID)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	out := make([]businessResponse, 0, len(list))
	for _, b := range list {
		out = append(out, businessResponse{ID: b.ID, Name: b.Name, CreatedAt: b.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"businesses": out})
}

// handleBusinessMe reports the caller's role inside the business scope
// declared by the request.
func (a *API) handleBusinessMe(w http.ResponseWriter, r *http.Request) {
	member, ok := membershipFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"businessId": member.BusinessID,
		"role":       member.Role,
		"since":      member.CreatedAt,
	})
}
