package handlers

import (
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/middleware"
	"taskboard-project/backend/models"
	"taskboard-project/backend/services"
)

type OrganizationHandler struct {
	OrganizationService *services.OrganizationService
}

func NewOrganizationHandler(orgService *services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{OrganizationService: orgService}
}

func (h *OrganizationHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	org, err := h.OrganizationService.GetOrganizationByID(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, org)
}

func (h *OrganizationHandler) SearchOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.OrganizationService.SearchByName(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, orgs)
}

func (h *OrganizationHandler) SearchMembers(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	members, err := h.OrganizationService.SearchMembers(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, members)
}

type createOrganizationRequest struct {
	Name    string   `json:"name" validate:"required,min=2,max=128"`
	Members []string `json:"members"`
}

func (h *OrganizationHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}

	var req createOrganizationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	org, err := h.OrganizationService.CreateOrganization(r.Context(), callerID, req.Name, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, org)
}

type addMemberRequest struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin member"`
}

func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	orgID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req addMemberRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role := models.OrgRole(req.Role)
	if role == "" {
		role = models.OrgRoleMember
	}

	if err := h.OrganizationService.AddMember(r.Context(), callerID, orgID, req.Username, role); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "member added")
}

func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	orgID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.OrganizationService.RemoveMember(r.Context(), callerID, orgID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "member removed")
}

type updateOrganizationRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=128"`
	Members []struct {
		UserID string `json:"userId" validate:"required"`
		Role   string `json:"role" validate:"required,oneof=admin member"`
	} `json:"members" validate:"required,dive"`
}

func (h *OrganizationHandler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	orgID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateOrganizationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	members := make([]models.OrgMember, 0, len(req.Members))
	for _, m := range req.Members {
		userID, err := primitive.ObjectIDFromHex(m.UserID)
		if err != nil {
			writeError(w, errs.Newf(errs.Validation, "invalid member id %q", m.UserID))
			return
		}
		members = append(members, models.OrgMember{UserID: userID, Role: models.OrgRole(m.Role)})
	}

	org, err := h.OrganizationService.UpdateOrganization(r.Context(), callerID, orgID, req.Name, members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, org)
}

func (h *OrganizationHandler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	orgID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.OrganizationService.DeleteOrganization(r.Context(), callerID, orgID); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "organization deleted")
}
