package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProjectRole string

const (
	ProjectRoleDeveloper    ProjectRole = "developer"
	ProjectRoleProductOwner ProjectRole = "product_owner"
	ProjectRoleScrumMaster  ProjectRole = "scrum_master"
	ProjectRoleAdmin        ProjectRole = "admin"
	ProjectRoleOwner        ProjectRole = "owner"
)

var projectRoleOrdinals = map[ProjectRole]int{
	ProjectRoleDeveloper:    0,
	ProjectRoleProductOwner: 1,
	ProjectRoleScrumMaster:  2,
	ProjectRoleAdmin:        3,
	ProjectRoleOwner:        4,
}

// Ordinal returns the numeric rank of a project role, -1 for unknown roles.
func (r ProjectRole) Ordinal() int {
	if ord, ok := projectRoleOrdinals[r]; ok {
		return ord
	}
	return -1
}

func (r ProjectRole) Valid() bool {
	_, ok := projectRoleOrdinals[r]
	return ok
}

// AtLeast reports whether the role ranks at or above the given minimum.
func (r ProjectRole) AtLeast(min ProjectRole) bool {
	return r.Ordinal() >= 0 && r.Ordinal() >= min.Ordinal()
}

// Privileged project actions gated by the project settings.
const (
	ActionAddUser        = "addUser"
	ActionRemoveUser     = "removeUser"
	ActionUpdateUserRole = "updateUserRole"
	ActionCreateSprint   = "createSprint"
	ActionCreateTask     = "createTask"
	ActionDeleteTask     = "deleteTask"
	ActionUpdateProject  = "updateProject"
	ActionDeleteProject  = "deleteProject"
)

// DefaultProjectSettings maps every privileged action to its minimum required role.
func DefaultProjectSettings() map[string]ProjectRole {
	return map[string]ProjectRole{
		ActionAddUser:        ProjectRoleAdmin,
		ActionRemoveUser:     ProjectRoleAdmin,
		ActionUpdateUserRole: ProjectRoleAdmin,
		ActionCreateSprint:   ProjectRoleScrumMaster,
		ActionCreateTask:     ProjectRoleDeveloper,
		ActionDeleteTask:     ProjectRoleScrumMaster,
		ActionUpdateProject:  ProjectRoleAdmin,
		ActionDeleteProject:  ProjectRoleOwner,
	}
}

type ProjectMember struct {
	UserID       primitive.ObjectID `bson:"userId" json:"userId"`
	Role         ProjectRole        `bson:"role" json:"role"`
	Productivity float64            `bson:"productivity" json:"productivity"`
}

type Sprint struct {
	ID          primitive.ObjectID   `bson:"sprintId" json:"sprintId"`
	Name        string               `bson:"name" json:"name"`
	Description string               `bson:"description" json:"description"`
	StartDate   time.Time            `bson:"startDate" json:"startDate"`
	EndDate     time.Time            `bson:"endDate" json:"endDate"`
	Tasks       []primitive.ObjectID `bson:"tasks" json:"tasks"`
}

type Project struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Organization primitive.ObjectID     `bson:"organization" json:"organization"`
	Name         string                 `bson:"name" json:"name"`
	Description  string                 `bson:"description" json:"description"`
	StartDate    time.Time              `bson:"startDate" json:"startDate"`
	EndDate      time.Time              `bson:"endDate" json:"endDate"`
	Users        []ProjectMember        `bson:"users" json:"users"`
	Sprints      []Sprint               `bson:"sprints" json:"sprints"`
	Settings     map[string]ProjectRole `bson:"settings" json:"settings"`
}

// MemberRole returns the role the given user holds on the project.
func (p *Project) MemberRole(userID primitive.ObjectID) (ProjectRole, bool) {
	for _, m := range p.Users {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

func (p *Project) HasMember(userID primitive.ObjectID) bool {
	_, ok := p.MemberRole(userID)
	return ok
}

// MinRoleFor returns the configured minimum role for a privileged action,
// falling back to the default settings when the project has no entry.
func (p *Project) MinRoleFor(action string) ProjectRole {
	if role, ok := p.Settings[action]; ok {
		return role
	}
	return DefaultProjectSettings()[action]
}
