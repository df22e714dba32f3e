package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

type User struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Username      string               `bson:"username" json:"username"`
	Email         string               `bson:"email" json:"email"`
	Password      string               `bson:"password" json:"password,omitempty"`
	Role          UserRole             `bson:"role" json:"role"`
	Avatar        string               `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Organizations []primitive.ObjectID `bson:"organizations" json:"organizations"`
}

// Sanitize blanks credentials before the user leaves the service boundary.
func (u *User) Sanitize() {
	u.Password = ""
}
