package handlers

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/middleware"
	"taskboard-project/backend/models"
	"taskboard-project/backend/services"
)

type ProjectHandler struct {
	ProjectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{ProjectService: projectService}
}

func (h *ProjectHandler) SearchProjects(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathID(r, "orgId")
	if err != nil {
		writeError(w, err)
		return
	}
	page := queryPage(r)

	projects, totalPages, err := h.ProjectService.SearchProjects(r.Context(), orgID, r.URL.Query().Get("name"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"projects":   projects,
		"totalPages": totalPages,
	})
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	project, members, err := h.ProjectService.GetProjectWithMembers(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"project": project,
		"members": members,
	})
}

type projectMemberPayload struct {
	UserID       string  `json:"userId" validate:"required"`
	Role         string  `json:"role" validate:"required,oneof=developer product_owner scrum_master admin owner"`
	Productivity float64 `json:"productivity"`
}

func parseProjectMembers(payload []projectMemberPayload) ([]models.ProjectMember, error) {
	members := make([]models.ProjectMember, 0, len(payload))
	for _, m := range payload {
		userID, err := primitive.ObjectIDFromHex(m.UserID)
		if err != nil {
			return nil, errs.Newf(errs.Validation, "invalid member id %q", m.UserID)
		}
		members = append(members, models.ProjectMember{
			UserID:       userID,
			Role:         models.ProjectRole(m.Role),
			Productivity: m.Productivity,
		})
	}
	return members, nil
}

type createProjectRequest struct {
	Name        string                 `json:"name" validate:"required,min=2,max=128"`
	Description string                 `json:"description"`
	StartDate   time.Time              `json:"startDate" validate:"required"`
	EndDate     time.Time              `json:"endDate" validate:"required"`
	Members     []projectMemberPayload `json:"members" validate:"dive"`
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	orgID, err := pathID(r, "orgId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req createProjectRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	members, err := parseProjectMembers(req.Members)
	if err != nil {
		writeError(w, err)
		return
	}

	project, err := h.ProjectService.CreateProject(r.Context(), callerID, orgID, req.Name, req.Description, req.StartDate, req.EndDate, members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, project)
}

type sprintPayload struct {
	SprintID    string    `json:"sprintId"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Tasks       []string  `json:"tasks"`
}

type updateProjectRequest struct {
	Description string                 `json:"description"`
	StartDate   time.Time              `json:"startDate" validate:"required"`
	EndDate     time.Time              `json:"endDate" validate:"required"`
	Members     []projectMemberPayload `json:"members" validate:"dive"`
	Sprints     []sprintPayload        `json:"sprints" validate:"dive"`
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateProjectRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	members, err := parseProjectMembers(req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	sprints, err := parseSprints(req.Sprints)
	if err != nil {
		writeError(w, err)
		return
	}

	project, err := h.ProjectService.UpdateProject(r.Context(), callerID, projectID, services.ProjectUpdate{
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Users:       members,
		Sprints:     sprints,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, project)
}

func parseSprints(payload []sprintPayload) ([]models.Sprint, error) {
	sprints := make([]models.Sprint, 0, len(payload))
	for _, sp := range payload {
		sprint := models.Sprint{
			Name:        sp.Name,
			Description: sp.Description,
			StartDate:   sp.StartDate,
			EndDate:     sp.EndDate,
			Tasks:       []primitive.ObjectID{},
		}
		if sp.SprintID != "" {
			id, err := primitive.ObjectIDFromHex(sp.SprintID)
			if err != nil {
				return nil, errs.Newf(errs.Validation, "invalid sprint id %q", sp.SprintID)
			}
			sprint.ID = id
		} else {
			sprint.ID = primitive.NewObjectID()
		}
		for _, taskID := range sp.Tasks {
			id, err := primitive.ObjectIDFromHex(taskID)
			if err != nil {
				return nil, errs.Newf(errs.Validation, "invalid task id %q", taskID)
			}
			sprint.Tasks = append(sprint.Tasks, id)
		}
		sprints = append(sprints, sprint)
	}
	return sprints, nil
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.ProjectService.DeleteProject(r.Context(), callerID, projectID); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "project deleted")
}

type addProjectUserRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=developer product_owner scrum_master admin owner"`
}

func (h *ProjectHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req addProjectUserRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		writeError(w, errs.Newf(errs.Validation, "invalid user id %q", req.UserID))
		return
	}

	if err := h.ProjectService.AddUserToProject(r.Context(), callerID, projectID, userID, models.ProjectRole(req.Role)); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "user added to project")
}

func (h *ProjectHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.ProjectService.RemoveUserFromProject(r.Context(), callerID, projectID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "user removed from project")
}

type updateUserRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=developer product_owner scrum_master admin owner"`
}

func (h *ProjectHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateUserRoleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.ProjectService.UpdateUserRole(r.Context(), callerID, projectID, userID, models.ProjectRole(req.Role)); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "user role updated")
}

func (h *ProjectHandler) CheckMembership(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}

	onProject, err := h.ProjectService.CheckIfUserIsOnProject(r.Context(), projectID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]bool{"onProject": onProject})
}

type addSprintRequest struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required"`
}

func (h *ProjectHandler) AddSprint(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req addSprintRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.ProjectService.AddSprint(r.Context(), callerID, projectID, models.Sprint{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, project)
}
