package api

import (
	"net/http"

	_ "meet-backend/internal/auth"
)

// @Summary      Get current token claims
// @Description  Returns the identity claims carried by the caller's access token.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  auth.AppClaims
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /me [get]
func (s *Server) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusInternalServerError, "Could not retrieve user from token")
		return
	}

	writeJSON(w, http.StatusOK, claims)
}
