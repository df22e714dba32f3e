package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrgRole string

const (
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

type OrgMember struct {
	UserID primitive.ObjectID `bson:"userId" json:"userId"`
	Role   OrgRole            `bson:"role" json:"role"`
}

type Organization struct {
	ID       primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name     string               `bson:"name" json:"name"`
	Members  []OrgMember          `bson:"members" json:"members"`
	Projects []primitive.ObjectID `bson:"projects" json:"projects"`
}

// MemberRole returns the role the given user holds in the organization.
func (o *Organization) MemberRole(userID primitive.ObjectID) (OrgRole, bool) {
	for _, m := range o.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

func (o *Organization) HasMember(userID primitive.ObjectID) bool {
	_, ok := o.MemberRole(userID)
	return ok
}
