package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/models"
)

func TestCreateTaskDefaults(t *testing.T) {
	f := newFixture(t)
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")

	task := f.createTask(t, alice.ID, project.ID, "liftoff")

	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.Zero(t, task.Progress)
	assert.NotNil(t, task.Users)
	assert.NotNil(t, task.Comments)
}

func TestCreateTaskInSprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")

	withSprint, err := f.projects.AddSprint(ctx, alice.ID, project.ID, models.Sprint{
		Name:      "sprint-1",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(14 * 24 * time.Hour),
	})
	require.NoError(t, err)
	sprintID := withSprint.Sprints[0].ID

	task, err := f.tasks.CreateTask(ctx, alice.ID, project.ID, &sprintID, TaskInput{
		Name:      "liftoff",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)

	refreshed, err := f.projects.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, refreshed.Sprints, 1)
	assert.Contains(t, refreshed.Sprints[0].Tasks, task.ID)

	// an unknown sprint is rejected before anything is written
	ghost := primitive.NewObjectID()
	_, err = f.tasks.CreateTask(ctx, alice.ID, project.ID, &ghost, TaskInput{
		Name:      "orphan",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
	})
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestCreateTaskNameConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")
	f.createTask(t, alice.ID, project.ID, "liftoff")

	_, err := f.tasks.CreateTask(ctx, alice.ID, project.ID, nil, TaskInput{
		Name:      "liftoff",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
	})
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestCreateTaskRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	mallory := f.registerUser(t, "mallory")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")

	_, err := f.tasks.CreateTask(ctx, mallory.ID, project.ID, nil, TaskInput{
		Name:      "liftoff",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
	})
	assert.Equal(t, errs.Forbidden, errs.KindOf(err))
}

func TestUpdateTaskPartialMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")
	task := f.createTask(t, alice.ID, project.ID, "liftoff")

	progress := 40.0
	updated, err := f.tasks.UpdateTask(ctx, alice.ID, task.ID, TaskUpdate{
		Status:   models.StatusInProgress,
		Progress: &progress,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, 40.0, updated.Progress)
	// untouched fields survive the merge
	assert.Equal(t, "liftoff", updated.Name)
	assert.Equal(t, models.PriorityMedium, updated.Priority)

	// an explicit zero is applied, not skipped
	zero := 0.0
	updated, err = f.tasks.UpdateTask(ctx, alice.ID, task.ID, TaskUpdate{Progress: &zero})
	require.NoError(t, err)
	assert.Zero(t, updated.Progress)

	over := 101.0
	_, err = f.tasks.UpdateTask(ctx, alice.ID, task.ID, TaskUpdate{Progress: &over})
	assert.Equal(t, errs.Validation, errs.KindOf(err))

	_, err = f.tasks.UpdateTask(ctx, alice.ID, task.ID, TaskUpdate{Status: "paused"})
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")
	task := f.createTask(t, alice.ID, project.ID, "liftoff")

	updated, err := f.tasks.AddComment(ctx, alice.ID, task.ID, "looks good")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, alice.ID, updated.Comments[0].Author)
	assert.Equal(t, "looks good", updated.Comments[0].Text)

	_, err = f.tasks.AddComment(ctx, alice.ID, task.ID, "")
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestListForUserExcludesDone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")

	open, err := f.tasks.CreateTask(ctx, alice.ID, project.ID, nil, TaskInput{
		Name:      "open-task",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
		Users:     []primitive.ObjectID{alice.ID},
	})
	require.NoError(t, err)
	_, err = f.tasks.CreateTask(ctx, alice.ID, project.ID, nil, TaskInput{
		Name:      "done-task",
		Status:    models.StatusDone,
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
		Users:     []primitive.ObjectID{alice.ID},
	})
	require.NoError(t, err)

	tasks, err := f.tasks.ListForUser(ctx, project.ID, alice.ID, false)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = f.tasks.ListForUser(ctx, project.ID, alice.ID, true)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, open.ID, tasks[0].ID)
}

func TestSearchTasksPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")
	for _, name := range []string{"alpha", "beta", "gamma"} {
		f.createTask(t, alice.ID, project.ID, name)
	}

	tasks, totalPages, err := f.tasks.SearchTasks(ctx, project.ID, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, totalPages)
	assert.Len(t, tasks, 3)

	tasks, _, err = f.tasks.SearchTasks(ctx, project.ID, "beta", 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	_, _, err = f.tasks.SearchTasks(ctx, project.ID, "", 2)
	assert.Equal(t, errs.PageOutOfRange, errs.KindOf(err))
}

func TestDeleteTaskCleansReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")

	withSprint, err := f.projects.AddSprint(ctx, alice.ID, project.ID, models.Sprint{
		Name:      "sprint-1",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(14 * 24 * time.Hour),
	})
	require.NoError(t, err)
	sprintID := withSprint.Sprints[0].ID

	doomed, err := f.tasks.CreateTask(ctx, alice.ID, project.ID, &sprintID, TaskInput{
		Name:      "doomed",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)

	dependent, err := f.tasks.CreateTask(ctx, alice.ID, project.ID, nil, TaskInput{
		Name:         "dependent",
		StartDate:    time.Now().Add(time.Hour),
		EndDate:      time.Now().Add(48 * time.Hour),
		Dependencies: []primitive.ObjectID{doomed.ID},
	})
	require.NoError(t, err)

	require.NoError(t, f.tasks.DeleteTask(ctx, alice.ID, doomed.ID))

	_, err = f.tasks.GetTaskByID(ctx, doomed.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	refreshed, err := f.projects.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	assert.NotContains(t, refreshed.Sprints[0].Tasks, doomed.ID)

	detail, err := f.tasks.GetTaskByID(ctx, dependent.ID)
	require.NoError(t, err)
	assert.NotContains(t, detail.Task.Dependencies, doomed.ID)
}

func TestDeleteTaskRequiresRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	bob := f.registerUser(t, "bob")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")
	require.NoError(t, f.projects.AddUserToProject(ctx, alice.ID, project.ID, bob.ID, models.ProjectRoleDeveloper))
	task := f.createTask(t, alice.ID, project.ID, "liftoff")

	// deleting needs scrum_master, a developer is turned away
	err := f.tasks.DeleteTask(ctx, bob.ID, task.ID)
	assert.Equal(t, errs.Forbidden, errs.KindOf(err))

	detail, err := f.tasks.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "liftoff", detail.Task.Name)
}

func TestDeleteTaskByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")
	f.createTask(t, alice.ID, project.ID, "liftoff")

	require.NoError(t, f.tasks.DeleteTaskByName(ctx, alice.ID, project.ID, "liftoff"))

	err := f.tasks.DeleteTaskByName(ctx, alice.ID, project.ID, "liftoff")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestGetTaskByIDPopulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	org := f.createOrg(t, alice.ID, "acme")
	project := f.createProject(t, alice.ID, org.ID, "apollo")

	task, err := f.tasks.CreateTask(ctx, alice.ID, project.ID, nil, TaskInput{
		Name:      "liftoff",
		StartDate: time.Now().Add(time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
		Users:     []primitive.ObjectID{alice.ID},
	})
	require.NoError(t, err)

	detail, err := f.tasks.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, detail.Users, 1)
	assert.Equal(t, "alice", detail.Users[0].Username)
	assert.Empty(t, detail.Users[0].Password)
	require.NotNil(t, detail.Project)
	assert.Equal(t, project.ID, detail.Project.ID)
	require.NotNil(t, detail.Organization)
	assert.Equal(t, org.ID, detail.Organization.ID)
}
