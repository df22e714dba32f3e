package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Comment struct {
	Author   primitive.ObjectID `bson:"author" json:"author"`
	Text     string             `bson:"text" json:"text"`
	PostedAt time.Time          `bson:"postedAt" json:"postedAt"`
}

type Task struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name         string               `bson:"name" json:"name"`
	Description  string               `bson:"description" json:"description"`
	Priority     TaskPriority         `bson:"priority" json:"priority"`
	Status       TaskStatus           `bson:"status" json:"status"`
	Progress     float64              `bson:"progress" json:"progress"`
	StartDate    time.Time            `bson:"startDate" json:"startDate"`
	EndDate      time.Time            `bson:"endDate" json:"endDate"`
	Users        []primitive.ObjectID `bson:"users" json:"users"`
	Dependencies []primitive.ObjectID `bson:"dependencies" json:"dependencies"`
	Comments     []Comment            `bson:"comments" json:"comments"`
	Project      primitive.ObjectID   `bson:"project" json:"project"`
}
