package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-news-cms/internal/middleware"
	"go-news-cms/internal/model"
	"go-news-cms/pkg/apierror"
)

type userService interface {
	GetByID(ctx context.Context, id string) (model.AuthUser, error)
	List(ctx context.Context, filter model.UserFilter) ([]model.AuthUser, error)
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (model.AuthUser, error)
	Suspend(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	AssignRole(ctx context.Context, userID string, roleName string) (model.AuthUser, error)
	RevokeRole(ctx context.Context, userID string, roleName string) (model.AuthUser, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
}

type UserHandler struct {
	service userService
}

func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	users, err := h.service.List(r.Context(), model.UserFilter{
		IsActive:    parseOptionalBool(query.Get("active")),
		IsSuspended: parseOptionalBool(query.Get("suspended")),
		Limit:       parseIntOrDefault(query.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuthUserList{Users: users}, nil)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

// UpdateMe lets a user edit their own profile. Only the fields of
// model.ProfileUpdate can be set; anything else in the body is ignored.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	var payload model.ProfileUpdate
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.UpdateProfile(actorContext(r), principal.User.ID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Suspend(actorContext(r), userID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageData{Message: "User suspended"}, nil)
}

func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Activate(actorContext(r), userID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageData{Message: "User activated"}, nil)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(actorContext(r), userID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true}, nil)
}

func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var payload model.AssignRoleRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	role := strings.TrimSpace(payload.Role)
	if role == "" {
		writeError(w, apierror.New("BAD_REQUEST", "role is required", "role", http.StatusBadRequest))
		return
	}

	user, err := h.service.AssignRole(actorContext(r), userID, role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.service.RevokeRole(actorContext(r), userID, chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.RoleList{Roles: roles}, nil)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return "", false
	}
	return userID, true
}
