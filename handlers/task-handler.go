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

type TaskHandler struct {
	TaskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{TaskService: taskService}
}

func (h *TaskHandler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectId")
	if err != nil {
		writeError(w, err)
		return
	}
	page := queryPage(r)

	tasks, totalPages, err := h.TaskService.SearchTasks(r.Context(), projectID, r.URL.Query().Get("name"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]interface{}{
		"tasks":      tasks,
		"totalPages": totalPages,
	})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	detail, err := h.TaskService.GetTaskByID(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, detail)
}

func (h *TaskHandler) ListTasksForUser(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectId")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}
	excludeDone := r.URL.Query().Get("excludeDone") == "true"

	tasks, err := h.TaskService.ListForUser(r.Context(), projectID, userID, excludeDone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Name         string    `json:"name" validate:"required,min=2,max=128"`
	Description  string    `json:"description"`
	Priority     string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status       string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	SprintID     string    `json:"sprintId"`
	Users        []string  `json:"users"`
	Dependencies []string  `json:"dependencies"`
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "projectId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req createTaskRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var sprintID *primitive.ObjectID
	if req.SprintID != "" {
		id, err := primitive.ObjectIDFromHex(req.SprintID)
		if err != nil {
			writeError(w, errs.Newf(errs.Validation, "invalid sprint id %q", req.SprintID))
			return
		}
		sprintID = &id
	}
	users, err := parseObjectIDs(req.Users)
	if err != nil {
		writeError(w, err)
		return
	}
	dependencies, err := parseObjectIDs(req.Dependencies)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := h.TaskService.CreateTask(r.Context(), callerID, projectID, sprintID, services.TaskInput{
		Name:         req.Name,
		Description:  req.Description,
		Priority:     models.TaskPriority(req.Priority),
		Status:       models.TaskStatus(req.Status),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Users:        users,
		Dependencies: dependencies,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, task)
}

type updateTaskRequest struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Priority     string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status       string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Progress     *float64  `json:"progress"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	Users        []string  `json:"users"`
	Dependencies []string  `json:"dependencies"`
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateTaskRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	upd := services.TaskUpdate{
		Name:        req.Name,
		Description: req.Description,
		Priority:    models.TaskPriority(req.Priority),
		Status:      models.TaskStatus(req.Status),
		Progress:    req.Progress,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	if req.Users != nil {
		users, err := parseObjectIDs(req.Users)
		if err != nil {
			writeError(w, err)
			return
		}
		upd.Users = users
	}
	if req.Dependencies != nil {
		dependencies, err := parseObjectIDs(req.Dependencies)
		if err != nil {
			writeError(w, err)
			return
		}
		upd.Dependencies = dependencies
	}

	task, err := h.TaskService.UpdateTask(r.Context(), callerID, taskID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, task)
}

type addCommentRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *TaskHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req addCommentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.TaskService.AddComment(r.Context(), callerID, taskID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.TaskService.DeleteTask(r.Context(), callerID, taskID); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "task deleted")
}

func (h *TaskHandler) DeleteTaskByName(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, errs.New(errs.Unauthenticated, "unauthorized"))
		return
	}
	projectID, err := pathID(r, "projectId")
	if err != nil {
		writeError(w, err)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, errs.New(errs.Validation, "task name is required"))
		return
	}

	if err := h.TaskService.DeleteTaskByName(r.Context(), callerID, projectID, name); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, "task deleted")
}

func parseObjectIDs(hexIDs []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(hexIDs))
	for _, hexID := range hexIDs {
		id, err := primitive.ObjectIDFromHex(hexID)
		if err != nil {
			return nil, errs.Newf(errs.Validation, "invalid id %q", hexID)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
