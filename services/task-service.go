package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/logging"
	"taskboard-project/backend/models"
	"taskboard-project/backend/store"
)

type TaskService struct {
	Store    store.Store
	PageSize int
}

func NewTaskService(st store.Store, pageSize int) *TaskService {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &TaskService{Store: st, PageSize: pageSize}
}

// TaskDetail is a task populated with its assigned users, owning project and
// organization.
type TaskDetail struct {
	Task         models.Task          `json:"task"`
	Users        []models.User        `json:"users"`
	Project      *models.Project      `json:"project,omitempty"`
	Organization *models.Organization `json:"organization,omitempty"`
}

// SearchTasks pages through a project's tasks filtered by a name pattern.
func (s *TaskService) SearchTasks(ctx context.Context, projectID primitive.ObjectID, name string, page int) ([]models.Task, int, error) {
	filter := bson.M{"project": projectID}
	if name != "" {
		filter["name"] = bson.M{"$regex": containsPattern(name), "$options": "i"}
	}

	total, err := s.Store.Count(ctx, store.Tasks, filter)
	if err != nil {
		return nil, 0, errs.Wrap(errs.Unknown, err, "failed to count tasks")
	}
	skip, limit, totalPages, err := pageWindow(total, page, s.PageSize)
	if err != nil {
		return nil, totalPages, err
	}

	var tasks []models.Task
	opts := &store.FindOptions{
		Sort:  bson.D{{Key: "name", Value: 1}},
		Skip:  skip,
		Limit: limit,
	}
	if err := s.Store.Find(ctx, store.Tasks, filter, &tasks, opts); err != nil {
		return nil, totalPages, errs.Wrap(errs.Unknown, err, "failed to fetch tasks")
	}
	return tasks, totalPages, nil
}

// GetTaskByID returns a task populated with its users, project and
// organization. Passwords never leave the service.
func (s *TaskService) GetTaskByID(ctx context.Context, taskID primitive.ObjectID) (*TaskDetail, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	detail := &TaskDetail{Task: *task}

	if len(task.Users) > 0 {
		filter := bson.M{"_id": bson.M{"$in": task.Users}}
		if err := s.Store.Find(ctx, store.Users, filter, &detail.Users, &store.FindOptions{Projection: bson.M{"password": 0}}); err != nil {
			return nil, errs.Wrap(errs.Unknown, err, "failed to fetch assigned users")
		}
		for i := range detail.Users {
			detail.Users[i].Sanitize()
		}
	}

	var project models.Project
	if err := s.Store.FindOne(ctx, store.Projects, bson.M{"_id": task.Project}, &project, nil); err == nil {
		detail.Project = &project
		var org models.Organization
		if err := s.Store.FindOne(ctx, store.Organizations, bson.M{"_id": project.Organization}, &org, nil); err == nil {
			detail.Organization = &org
		}
	}

	return detail, nil
}

// ListForUser returns the tasks assigned to a user within a project,
// optionally excluding finished ones.
func (s *TaskService) ListForUser(ctx context.Context, projectID, userID primitive.ObjectID, excludeDone bool) ([]models.Task, error) {
	filter := bson.M{"project": projectID, "users": userID}
	if excludeDone {
		filter["status"] = bson.M{"$ne": models.StatusDone}
	}

	var tasks []models.Task
	if err := s.Store.Find(ctx, store.Tasks, filter, &tasks, &store.FindOptions{Sort: bson.D{{Key: "name", Value: 1}}}); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to fetch tasks")
	}
	return tasks, nil
}

// TaskInput carries the fields accepted at task creation.
type TaskInput struct {
	Name         string
	Description  string
	Priority     models.TaskPriority
	Status       models.TaskStatus
	StartDate    time.Time
	EndDate      time.Time
	Users        []primitive.ObjectID
	Dependencies []primitive.ObjectID
}

// CreateTask creates a task, standalone or inside a sprint. A sprint-scoped
// task gets its id pushed into the matching sprint's task list. Progress
// always starts at zero.
func (s *TaskService) CreateTask(ctx context.Context, callerID, projectID primitive.ObjectID, sprintID *primitive.ObjectID, input TaskInput) (*models.Task, error) {
	project, err := s.requireRole(ctx, callerID, projectID, models.ActionCreateTask)
	if err != nil {
		return nil, err
	}

	if sprintID != nil && findSprint(project, *sprintID) < 0 {
		return nil, errs.New(errs.NotFound, "sprint not found on project")
	}

	var existing models.Task
	if err := s.Store.FindOne(ctx, store.Tasks, bson.M{"name": input.Name}, &existing, nil); err == nil {
		return nil, errs.Newf(errs.Conflict, "task %q already exists", input.Name)
	} else if !errors.Is(err, store.ErrNoDocuments) {
		return nil, errs.Wrap(errs.Unknown, err, "failed to check task name")
	}

	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if input.Status == "" {
		input.Status = models.StatusTodo
	}
	if !input.Priority.Valid() {
		return nil, errs.Newf(errs.Validation, "unknown priority %q", input.Priority)
	}
	if !input.Status.Valid() {
		return nil, errs.Newf(errs.Validation, "unknown status %q", input.Status)
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, errs.New(errs.Validation, "end date must be after start date")
	}

	task := models.Task{
		Name:         input.Name,
		Description:  input.Description,
		Priority:     input.Priority,
		Status:       input.Status,
		Progress:     0,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		Users:        orEmpty(input.Users),
		Dependencies: orEmpty(input.Dependencies),
		Comments:     []models.Comment{},
		Project:      projectID,
	}
	id, err := s.Store.InsertOne(ctx, store.Tasks, task)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to create task")
	}
	task.ID = id

	if sprintID != nil {
		if err := s.linkTaskToSprint(ctx, project, *sprintID, id); err != nil {
			logging.Logger.Warnf("Event ID: TASK_SPRINT_LINK_FAILED, Description: Task %s created but not linked to sprint %s: %v", id.Hex(), sprintID.Hex(), err)
		}
	}

	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %q created in project %s", task.Name, projectID.Hex())
	return &task, nil
}

// TaskUpdate carries a partial update: nil or zero fields keep their current
// value. Progress is a pointer so an explicit zero can be applied.
type TaskUpdate struct {
	Name         string
	Description  string
	Priority     models.TaskPriority
	Status       models.TaskStatus
	Progress     *float64
	StartDate    time.Time
	EndDate      time.Time
	Users        []primitive.ObjectID
	Dependencies []primitive.ObjectID
}

// UpdateTask merges the supplied fields into the task. The caller must be a
// member of the owning project.
func (s *TaskService) UpdateTask(ctx context.Context, callerID, taskID primitive.ObjectID, upd TaskUpdate) (*models.Task, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMembership(ctx, callerID, task.Project); err != nil {
		return nil, err
	}

	set := bson.M{}
	if upd.Name != "" && upd.Name != task.Name {
		var existing models.Task
		if err := s.Store.FindOne(ctx, store.Tasks, bson.M{"name": upd.Name, "_id": bson.M{"$ne": taskID}}, &existing, nil); err == nil {
			return nil, errs.Newf(errs.Conflict, "task %q already exists", upd.Name)
		} else if !errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.Wrap(errs.Unknown, err, "failed to check task name")
		}
		set["name"] = upd.Name
	}
	if upd.Description != "" {
		set["description"] = upd.Description
	}
	if upd.Priority != "" {
		if !upd.Priority.Valid() {
			return nil, errs.Newf(errs.Validation, "unknown priority %q", upd.Priority)
		}
		set["priority"] = upd.Priority
	}
	if upd.Status != "" {
		if !upd.Status.Valid() {
			return nil, errs.Newf(errs.Validation, "unknown status %q", upd.Status)
		}
		set["status"] = upd.Status
	}
	if upd.Progress != nil {
		if *upd.Progress < 0 || *upd.Progress > 100 {
			return nil, errs.New(errs.Validation, "progress must be between 0 and 100")
		}
		set["progress"] = *upd.Progress
	}
	if !upd.StartDate.IsZero() {
		set["startDate"] = upd.StartDate
	}
	if !upd.EndDate.IsZero() {
		set["endDate"] = upd.EndDate
	}
	if upd.Users != nil {
		set["users"] = upd.Users
	}
	if upd.Dependencies != nil {
		set["dependencies"] = upd.Dependencies
	}

	if len(set) > 0 {
		if _, err := s.Store.UpdateOne(ctx, store.Tasks, bson.M{"_id": taskID}, bson.M{"$set": set}); err != nil {
			return nil, errs.Wrap(errs.Unknown, err, "failed to update task")
		}
	}
	return s.getTask(ctx, taskID)
}

// AddComment appends a comment authored by the caller.
func (s *TaskService) AddComment(ctx context.Context, callerID, taskID primitive.ObjectID, text string) (*models.Task, error) {
	if text == "" {
		return nil, errs.New(errs.Validation, "comment text is required")
	}
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMembership(ctx, callerID, task.Project); err != nil {
		return nil, err
	}

	comment := models.Comment{Author: callerID, Text: text, PostedAt: time.Now()}
	if _, err := s.Store.UpdateOne(ctx, store.Tasks, bson.M{"_id": taskID}, bson.M{"$push": bson.M{"comments": comment}}); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to add comment")
	}
	return s.getTask(ctx, taskID)
}

// DeleteTask removes a task by id and cleans up every reference to it:
// the owning sprint's task list and other tasks' dependency lists.
func (s *TaskService) DeleteTask(ctx context.Context, callerID, taskID primitive.ObjectID) error {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	return s.deleteTask(ctx, callerID, task)
}

// DeleteTaskByName removes a task addressed by name within a project.
func (s *TaskService) DeleteTaskByName(ctx context.Context, callerID, projectID primitive.ObjectID, name string) error {
	var task models.Task
	if err := s.Store.FindOne(ctx, store.Tasks, bson.M{"name": name, "project": projectID}, &task, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return errs.Newf(errs.NotFound, "task %q not found", name)
		}
		return errs.Wrap(errs.Unknown, err, "failed to look up task")
	}
	return s.deleteTask(ctx, callerID, &task)
}

func (s *TaskService) deleteTask(ctx context.Context, callerID primitive.ObjectID, task *models.Task) error {
	project, err := s.requireRole(ctx, callerID, task.Project, models.ActionDeleteTask)
	if err != nil {
		return err
	}

	if _, err := s.Store.DeleteOne(ctx, store.Tasks, bson.M{"_id": task.ID}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to delete task")
	}

	s.unlinkTaskFromSprints(ctx, project, task.ID)

	if _, err := s.Store.UpdateMany(ctx, store.Tasks, bson.M{"dependencies": task.ID}, bson.M{"$pull": bson.M{"dependencies": task.ID}}); err != nil {
		logging.Logger.Warnf("Event ID: TASK_DEPENDENCY_UNLINK_FAILED, Description: Failed to remove task %s from dependency lists: %v", task.ID.Hex(), err)
	}

	logging.Logger.Infof("Event ID: TASK_DELETED, Description: Task %s deleted from project %s", task.ID.Hex(), task.Project.Hex())
	return nil
}

func (s *TaskService) getTask(ctx context.Context, taskID primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	if err := s.Store.FindOne(ctx, store.Tasks, bson.M{"_id": taskID}, &task, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.New(errs.NotFound, "task not found")
		}
		return nil, errs.Wrap(errs.Unknown, err, "failed to look up task")
	}
	return &task, nil
}

func (s *TaskService) requireMembership(ctx context.Context, callerID, projectID primitive.ObjectID) error {
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !project.HasMember(callerID) {
		return errs.New(errs.Forbidden, "caller is not on the project")
	}
	return nil
}

func (s *TaskService) requireRole(ctx context.Context, callerID, projectID primitive.ObjectID, action string) (*models.Project, error) {
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	role, ok := project.MemberRole(callerID)
	if !ok {
		return nil, errs.New(errs.Forbidden, "caller is not on the project")
	}
	if !role.AtLeast(project.MinRoleFor(action)) {
		return nil, errs.Newf(errs.Forbidden, "role %q is not allowed to perform %s", role, action)
	}
	return project, nil
}

func (s *TaskService) loadProject(ctx context.Context, projectID primitive.ObjectID) (*models.Project, error) {
	var project models.Project
	if err := s.Store.FindOne(ctx, store.Projects, bson.M{"_id": projectID}, &project, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.New(errs.NotFound, "project not found")
		}
		return nil, errs.Wrap(errs.Unknown, err, "failed to fetch project")
	}
	return &project, nil
}

func (s *TaskService) linkTaskToSprint(ctx context.Context, project *models.Project, sprintID, taskID primitive.ObjectID) error {
	idx := findSprint(project, sprintID)
	if idx < 0 {
		return errs.New(errs.NotFound, "sprint not found on project")
	}
	project.Sprints[idx].Tasks = append(project.Sprints[idx].Tasks, taskID)
	_, err := s.Store.UpdateOne(ctx, store.Projects, bson.M{"_id": project.ID}, bson.M{"$set": bson.M{"sprints": project.Sprints}})
	return err
}

func (s *TaskService) unlinkTaskFromSprints(ctx context.Context, project *models.Project, taskID primitive.ObjectID) {
	changed := false
	for i := range project.Sprints {
		kept := project.Sprints[i].Tasks[:0]
		for _, id := range project.Sprints[i].Tasks {
			if id == taskID {
				changed = true
				continue
			}
			kept = append(kept, id)
		}
		project.Sprints[i].Tasks = kept
	}
	if !changed {
		return
	}
	if _, err := s.Store.UpdateOne(ctx, store.Projects, bson.M{"_id": project.ID}, bson.M{"$set": bson.M{"sprints": project.Sprints}}); err != nil {
		logging.Logger.Warnf("Event ID: TASK_SPRINT_UNLINK_FAILED, Description: Failed to remove task %s from sprints of project %s: %v", taskID.Hex(), project.ID.Hex(), err)
	}
}

func findSprint(project *models.Project, sprintID primitive.ObjectID) int {
	for i := range project.Sprints {
		if project.Sprints[i].ID == sprintID {
			return i
		}
	}
	return -1
}

func orEmpty(ids []primitive.ObjectID) []primitive.ObjectID {
	if ids == nil {
		return []primitive.ObjectID{}
	}
	return ids
}
