package handler

import (
	"net/http"

	"github.com/nuhin13/test-ecom/internal/domain/cart"
)

// Identity headers set by the authentication gateway in front of this
// service. The API trusts them; it performs no token validation itself.
const (
	headerUserID    = "X-User-ID"
	headerSessionID = "X-Session-ID"
	headerAdmin     = "X-Admin"
)

func userID(r *http.Request) string {
	return r.Header.Get(headerUserID)
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get(headerAdmin) == "true"
}

// cartOwner resolves the cart identity for a request. Authenticated users
// win over guest sessions when both headers are present.
func cartOwner(r *http.Request) cart.Owner {
	if id := r.Header.Get(headerUserID); id != "" {
		return cart.UserOwner(id)
	}
	return cart.SessionOwner(r.Header.Get(headerSessionID))
}

// requireUser writes a 401 and returns "" when the request carries no user
// identity.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	id := userID(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return id
}

// requireAdmin writes a 403 and returns false when the request is not from
// an administrator.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "administrator access required")
		return false
	}
	return true
}
