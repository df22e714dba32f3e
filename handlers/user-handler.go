package handlers

import (
	"net/http"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/middleware"
	"taskboard-project/backend/models"
	"taskboard-project/backend/services"
)

type UserHandler struct {
	UserService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{UserService: userService}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Avatar   string `json:"avatar"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.UserService.Register(r.Context(), req.Username, req.Email, req.Password, req.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, user)
}

func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	page := queryPage(r)
	users, totalPages, err := h.UserService.SearchUsers(r.Context(), r.URL.Query().Get("query"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"users":      users,
		"totalPages": totalPages,
	})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.UserService.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, user)
}

type updateUserRequest struct {
	Username string `json:"username" validate:"omitempty,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Avatar   string `json:"avatar"`
	Password string `json:"password"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateUserRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.UserService.UpdateUser(r.Context(), callerID, userID, services.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Avatar:   req.Avatar,
		Password: req.Password,
		Role:     models.UserRole(req.Role),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if callerID != userID {
		isAdmin, err := h.UserService.IsAdmin(r.Context(), callerID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !isAdmin {
			writeError(w, errs.New(errs.Forbidden, "only admins can delete other accounts"))
			return
		}
	}

	if err := h.UserService.DeleteUser(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "account deleted")
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}

	var req changePasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.UserService.ChangePassword(r.Context(), callerID, req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "password changed")
}
