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

type ProjectService struct {
	Store    store.Store
	PageSize int
}

func NewProjectService(st store.Store, pageSize int) *ProjectService {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &ProjectService{Store: st, PageSize: pageSize}
}

// SearchProjects pages through an organization's projects filtered by a name
// pattern. Pages are 1-based and fixed at the configured page size.
func (s *ProjectService) SearchProjects(ctx context.Context, orgID primitive.ObjectID, name string, page int) ([]models.Project, int, error) {
	filter := bson.M{"organization": orgID}
	if name != "" {
		filter["name"] = bson.M{"$regex": containsPattern(name), "$options": "i"}
	}

	total, err := s.Store.Count(ctx, store.Projects, filter)
	if err != nil {
		return nil, 0, errs.Wrap(errs.Unknown, err, "failed to count projects")
	}
	skip, limit, totalPages, err := pageWindow(total, page, s.PageSize)
	if err != nil {
		return nil, totalPages, err
	}

	var projects []models.Project
	opts := &store.FindOptions{
		Sort:  bson.D{{Key: "name", Value: 1}},
		Skip:  skip,
		Limit: limit,
	}
	if err := s.Store.Find(ctx, store.Projects, filter, &projects, opts); err != nil {
		return nil, totalPages, errs.Wrap(errs.Unknown, err, "failed to fetch projects")
	}
	return projects, totalPages, nil
}

func (s *ProjectService) GetProjectByID(ctx context.Context, projectID primitive.ObjectID) (*models.Project, error) {
	var project models.Project
	if err := s.Store.FindOne(ctx, store.Projects, bson.M{"_id": projectID}, &project, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.New(errs.NotFound, "project not found")
		}
		return nil, errs.Wrap(errs.Unknown, err, "failed to fetch project")
	}
	return &project, nil
}

// GetProjectWithMembers returns the project along with the populated user
// records of its members, passwords blanked.
func (s *ProjectService) GetProjectWithMembers(ctx context.Context, projectID primitive.ObjectID) (*models.Project, []models.User, error) {
	project, err := s.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(project.Users))
	for _, m := range project.Users {
		ids = append(ids, m.UserID)
	}

	var users []models.User
	filter := bson.M{"_id": bson.M{"$in": ids}}
	if err := s.Store.Find(ctx, store.Users, filter, &users, &store.FindOptions{Projection: bson.M{"password": 0}}); err != nil {
		return nil, nil, errs.Wrap(errs.Unknown, err, "failed to fetch project members")
	}
	for i := range users {
		users[i].Sanitize()
	}
	return project, users, nil
}

// CreateProject creates a project inside an organization and registers it on
// the organization's project list. Both dates must lie in the future.
func (s *ProjectService) CreateProject(ctx context.Context, creatorID, orgID primitive.ObjectID, name, description string, startDate, endDate time.Time, members []models.ProjectMember) (*models.Project, error) {
	var org models.Organization
	if err := s.Store.FindOne(ctx, store.Organizations, bson.M{"_id": orgID}, &org, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.New(errs.NotFound, "organization not found")
		}
		return nil, errs.Wrap(errs.Unknown, err, "failed to fetch organization")
	}

	var existing models.Project
	if err := s.Store.FindOne(ctx, store.Projects, bson.M{"name": name}, &existing, nil); err == nil {
		return nil, errs.Newf(errs.Conflict, "project %q already exists", name)
	} else if !errors.Is(err, store.ErrNoDocuments) {
		return nil, errs.Wrap(errs.Unknown, err, "failed to check project name")
	}

	if err := validateDates(startDate, endDate); err != nil {
		return nil, err
	}

	users := make([]models.ProjectMember, 0, len(members)+1)
	users = append(users, models.ProjectMember{UserID: creatorID, Role: models.ProjectRoleOwner})
	for _, m := range members {
		if m.UserID == creatorID {
			continue
		}
		if !m.Role.Valid() {
			return nil, errs.Newf(errs.Validation, "unknown project role %q", m.Role)
		}
		users = append(users, m)
	}

	project := models.Project{
		Organization: orgID,
		Name:         name,
		Description:  description,
		StartDate:    startDate,
		EndDate:      endDate,
		Users:        users,
		Sprints:      []models.Sprint{},
		Settings:     models.DefaultProjectSettings(),
	}
	id, err := s.Store.InsertOne(ctx, store.Projects, project)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to create project")
	}
	project.ID = id

	// The project exists before the organization learns about it; if this
	// registration fails the project is orphaned, so the failure is logged
	// loudly rather than swallowed.
	if _, err := s.Store.UpdateOne(ctx, store.Organizations, bson.M{"_id": orgID}, bson.M{"$addToSet": bson.M{"projects": id}}); err != nil {
		logging.Logger.Errorf("Event ID: PROJECT_REGISTER_FAILED, Description: Project %s created but not registered on organization %s: %v", id.Hex(), orgID.Hex(), err)
	}

	logging.Logger.Infof("Event ID: PROJECT_CREATED, Description: Project %q created in organization %s", name, orgID.Hex())
	return &project, nil
}

// ProjectUpdate is a full replacement of the mutable project fields.
type ProjectUpdate struct {
	Description string
	StartDate   time.Time
	EndDate     time.Time
	Users       []models.ProjectMember
	Sprints     []models.Sprint
}

// UpdateProject replaces description, dates, member list and sprints.
func (s *ProjectService) UpdateProject(ctx context.Context, callerID, projectID primitive.ObjectID, upd ProjectUpdate) (*models.Project, error) {
	project, err := s.requireRole(ctx, callerID, projectID, models.ActionUpdateProject)
	if err != nil {
		return nil, err
	}

	if upd.EndDate.Before(upd.StartDate) {
		return nil, errs.New(errs.Validation, "end date must be after start date")
	}
	for _, m := range upd.Users {
		if !m.Role.Valid() {
			return nil, errs.Newf(errs.Validation, "unknown project role %q", m.Role)
		}
	}

	set := bson.M{
		"description": upd.Description,
		"startDate":   upd.StartDate,
		"endDate":     upd.EndDate,
		"users":       upd.Users,
		"sprints":     upd.Sprints,
	}
	if _, err := s.Store.UpdateOne(ctx, store.Projects, bson.M{"_id": project.ID}, bson.M{"$set": set}); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to update project")
	}
	return s.GetProjectByID(ctx, projectID)
}

// DeleteProject removes the project, its tasks and the reference held by the
// owning organization.
func (s *ProjectService) DeleteProject(ctx context.Context, callerID, projectID primitive.ObjectID) error {
	project, err := s.requireRole(ctx, callerID, projectID, models.ActionDeleteProject)
	if err != nil {
		return err
	}

	if _, err := s.Store.DeleteMany(ctx, store.Tasks, bson.M{"project": projectID}); err != nil {
		logging.Logger.Warnf("Event ID: PROJECT_DELETE_TASKS_FAILED, Description: Failed to delete tasks of project %s: %v", projectID.Hex(), err)
	}
	if _, err := s.Store.UpdateOne(ctx, store.Organizations, bson.M{"_id": project.Organization}, bson.M{"$pull": bson.M{"projects": projectID}}); err != nil {
		logging.Logger.Warnf("Event ID: PROJECT_DEREGISTER_FAILED, Description: Failed to remove project %s from organization %s: %v", projectID.Hex(), project.Organization.Hex(), err)
	}

	if _, err := s.Store.DeleteOne(ctx, store.Projects, bson.M{"_id": projectID}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to delete project")
	}
	logging.Logger.Infof("Event ID: PROJECT_DELETED, Description: Project %s deleted", projectID.Hex())
	return nil
}

// AddUserToProject adds a member with the given role.
func (s *ProjectService) AddUserToProject(ctx context.Context, callerID, projectID, userID primitive.ObjectID, role models.ProjectRole) error {
	project, err := s.requireRole(ctx, callerID, projectID, models.ActionAddUser)
	if err != nil {
		return err
	}
	if !role.Valid() {
		return errs.Newf(errs.Validation, "unknown project role %q", role)
	}
	if project.HasMember(userID) {
		return errs.New(errs.Conflict, "user is already on the project")
	}

	var user models.User
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"_id": userID}, &user, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return errs.New(errs.NotFound, "user not found")
		}
		return errs.Wrap(errs.Unknown, err, "failed to look up user")
	}

	member := models.ProjectMember{UserID: userID, Role: role}
	if _, err := s.Store.UpdateOne(ctx, store.Projects, bson.M{"_id": projectID}, bson.M{"$push": bson.M{"users": member}}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to add user to project")
	}
	return nil
}

// RemoveUserFromProject removes a member and, best effort, unassigns them
// from the project's tasks.
func (s *ProjectService) RemoveUserFromProject(ctx context.Context, callerID, projectID, userID primitive.ObjectID) error {
	project, err := s.requireRole(ctx, callerID, projectID, models.ActionRemoveUser)
	if err != nil {
		return err
	}
	if !project.HasMember(userID) {
		return errs.New(errs.NotFound, "user is not on the project")
	}

	if _, err := s.Store.UpdateOne(ctx, store.Projects, bson.M{"_id": projectID}, bson.M{"$pull": bson.M{"users": bson.M{"userId": userID}}}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to remove user from project")
	}
	if _, err := s.Store.UpdateMany(ctx, store.Tasks, bson.M{"project": projectID}, bson.M{"$pull": bson.M{"users": userID}}); err != nil {
		logging.Logger.Warnf("Event ID: PROJECT_TASK_UNASSIGN_FAILED, Description: Failed to unassign user %s from tasks of project %s: %v", userID.Hex(), projectID.Hex(), err)
	}
	return nil
}

// UpdateUserRole changes the role of an existing project member.
func (s *ProjectService) UpdateUserRole(ctx context.Context, callerID, projectID, userID primitive.ObjectID, role models.ProjectRole) error {
	project, err := s.requireRole(ctx, callerID, projectID, models.ActionUpdateUserRole)
	if err != nil {
		return err
	}
	if !role.Valid() {
		return errs.Newf(errs.Validation, "unknown project role %q", role)
	}

	found := false
	for i := range project.Users {
		if project.Users[i].UserID == userID {
			project.Users[i].Role = role
			found = true
			break
		}
	}
	if !found {
		return errs.New(errs.NotFound, "user is not on the project")
	}

	if _, err := s.Store.UpdateOne(ctx, store.Projects, bson.M{"_id": projectID}, bson.M{"$set": bson.M{"users": project.Users}}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to update user role")
	}
	return nil
}

// CheckIfUserIsOnProject reports whether the user appears in the project's
// member list.
func (s *ProjectService) CheckIfUserIsOnProject(ctx context.Context, projectID, userID primitive.ObjectID) (bool, error) {
	project, err := s.GetProjectByID(ctx, projectID)
	if err != nil {
		return false, err
	}
	return project.HasMember(userID), nil
}

// AddSprint appends a sprint to the project. The sprint is embedded, so the
// whole sprint array is replaced in a single document write.
func (s *ProjectService) AddSprint(ctx context.Context, callerID, projectID primitive.ObjectID, sprint models.Sprint) (*models.Project, error) {
	project, err := s.requireRole(ctx, callerID, projectID, models.ActionCreateSprint)
	if err != nil {
		return nil, err
	}
	if sprint.Name == "" {
		return nil, errs.New(errs.Validation, "sprint name is required")
	}
	if sprint.EndDate.Before(sprint.StartDate) {
		return nil, errs.New(errs.Validation, "sprint end date must be after its start date")
	}

	sprint.ID = primitive.NewObjectID()
	sprint.Tasks = []primitive.ObjectID{}
	sprints := append(project.Sprints, sprint)

	if _, err := s.Store.UpdateOne(ctx, store.Projects, bson.M{"_id": projectID}, bson.M{"$set": bson.M{"sprints": sprints}}); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to add sprint")
	}
	return s.GetProjectByID(ctx, projectID)
}

// requireRole loads the project and checks the caller's role ordinal against
// the settings threshold for the action.
func (s *ProjectService) requireRole(ctx context.Context, callerID, projectID primitive.ObjectID, action string) (*models.Project, error) {
	project, err := s.GetProjectByID(ctx, projectID)
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

func validateDates(startDate, endDate time.Time) error {
	now := time.Now()
	if startDate.Before(now) {
		return errs.New(errs.Validation, "start date must be in the future")
	}
	if endDate.Before(now) {
		return errs.New(errs.Validation, "end date must be in the future")
	}
	if endDate.Before(startDate) {
		return errs.New(errs.Validation, "end date must be after start date")
	}
	return nil
}
