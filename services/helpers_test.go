package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/models"
	"taskboard-project/backend/store"
)

const testPassword = "Sup3r.Secret"

type fixture struct {
	store    *store.MemoryStore
	jwt      *JWTService
	users    *UserService
	orgs     *OrganizationService
	projects *ProjectService
	tasks    *TaskService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	jwtService := NewJWTService("test-secret", time.Hour)
	return &fixture{
		store:    st,
		jwt:      jwtService,
		users:    NewUserService(st, jwtService, 10),
		orgs:     NewOrganizationService(st),
		projects: NewProjectService(st, 10),
		tasks:    NewTaskService(st, 10),
	}
}

func (f *fixture) registerUser(t *testing.T, username string) *models.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), username, username+"@example.com", testPassword, "")
	require.NoError(t, err)
	return user
}

func (f *fixture) createOrg(t *testing.T, creator primitive.ObjectID, name string, memberUsernames ...string) *models.Organization {
	t.Helper()
	org, err := f.orgs.CreateOrganization(context.Background(), creator, name, memberUsernames)
	require.NoError(t, err)
	return org
}

func (f *fixture) createProject(t *testing.T, creator, orgID primitive.ObjectID, name string) *models.Project {
	t.Helper()
	start := time.Now().Add(24 * time.Hour)
	end := time.Now().Add(30 * 24 * time.Hour)
	project, err := f.projects.CreateProject(context.Background(), creator, orgID, name, "test project", start, end, nil)
	require.NoError(t, err)
	return project
}

func (f *fixture) createTask(t *testing.T, caller, projectID primitive.ObjectID, name string) *models.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), caller, projectID, nil, TaskInput{
		Name:      name,
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return task
}
