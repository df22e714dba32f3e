package services

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/logging"
	"taskboard-project/backend/models"
	"taskboard-project/backend/store"
)

type OrganizationService struct {
	Store store.Store
}

func NewOrganizationService(st store.Store) *OrganizationService {
	return &OrganizationService{Store: st}
}

func (s *OrganizationService) GetOrganizationByID(ctx context.Context, orgID primitive.ObjectID) (*models.Organization, error) {
	var org models.Organization
	if err := s.Store.FindOne(ctx, store.Organizations, bson.M{"_id": orgID}, &org, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.New(errs.NotFound, "organization not found")
		}
		return nil, errs.Wrap(errs.Unknown, err, "failed to fetch organization")
	}
	return &org, nil
}

// SearchByName finds organizations whose name contains the given substring,
// case-insensitively.
func (s *OrganizationService) SearchByName(ctx context.Context, name string) ([]models.Organization, error) {
	filter := bson.M{"name": bson.M{"$regex": containsPattern(name), "$options": "i"}}
	var orgs []models.Organization
	opts := &store.FindOptions{Sort: bson.D{{Key: "name", Value: 1}}}
	if err := s.Store.Find(ctx, store.Organizations, filter, &orgs, opts); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to search organizations")
	}
	return orgs, nil
}

// SearchMembers returns the member users of an organization in member-list
// order, passwords blanked.
func (s *OrganizationService) SearchMembers(ctx context.Context, orgID primitive.ObjectID) ([]models.User, error) {
	org, err := s.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(org.Members))
	for _, m := range org.Members {
		ids = append(ids, m.UserID)
	}

	var users []models.User
	filter := bson.M{"_id": bson.M{"$in": ids}}
	if err := s.Store.Find(ctx, store.Users, filter, &users, &store.FindOptions{Projection: bson.M{"password": 0}}); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to fetch members")
	}

	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		u.Sanitize()
		byID[u.ID] = u
	}
	ordered := make([]models.User, 0, len(org.Members))
	for _, m := range org.Members {
		if u, ok := byID[m.UserID]; ok {
			ordered = append(ordered, u)
		}
	}
	return ordered, nil
}

// CreateOrganization creates an organization with the caller as implicit
// admin. Member usernames are resolved concurrently; if any fails to
// resolve, nothing is persisted.
func (s *OrganizationService) CreateOrganization(ctx context.Context, creatorID primitive.ObjectID, name string, memberUsernames []string) (*models.Organization, error) {
	var existing models.Organization
	if err := s.Store.FindOne(ctx, store.Organizations, bson.M{"name": name}, &existing, nil); err == nil {
		return nil, errs.Newf(errs.Conflict, "organization %q already exists", name)
	} else if !errors.Is(err, store.ErrNoDocuments) {
		return nil, errs.Wrap(errs.Unknown, err, "failed to check organization name")
	}

	resolved := make([]primitive.ObjectID, len(memberUsernames))
	g, gctx := errgroup.WithContext(ctx)
	for i, username := range memberUsernames {
		i, username := i, username
		g.Go(func() error {
			var user models.User
			if err := s.Store.FindOne(gctx, store.Users, bson.M{"username": username}, &user, nil); err != nil {
				if errors.Is(err, store.ErrNoDocuments) {
					return errs.Newf(errs.NotFound, "user %q not found", username)
				}
				return errs.Wrap(errs.Unknown, err, "failed to resolve member")
			}
			resolved[i] = user.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	members := []models.OrgMember{{UserID: creatorID, Role: models.OrgRoleAdmin}}
	seen := map[primitive.ObjectID]bool{creatorID: true}
	for _, id := range resolved {
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, models.OrgMember{UserID: id, Role: models.OrgRoleMember})
	}

	org := models.Organization{
		Name:     name,
		Members:  members,
		Projects: []primitive.ObjectID{},
	}
	id, err := s.Store.InsertOne(ctx, store.Organizations, org)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to create organization")
	}
	org.ID = id

	for _, m := range members {
		s.linkUser(ctx, m.UserID, id)
	}

	logging.Logger.Infof("Event ID: ORG_CREATED, Description: Organization %q created with %d members", name, len(members))
	return &org, nil
}

// AddMember adds a user (by username) to the organization. Caller must be an
// organization admin; duplicate members are rejected.
func (s *OrganizationService) AddMember(ctx context.Context, callerID, orgID primitive.ObjectID, username string, role models.OrgRole) error {
	org, err := s.requireAdmin(ctx, callerID, orgID)
	if err != nil {
		return err
	}
	if role != models.OrgRoleAdmin && role != models.OrgRoleMember {
		return errs.Newf(errs.Validation, "unknown organization role %q", role)
	}

	var user models.User
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"username": username}, &user, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return errs.Newf(errs.NotFound, "user %q not found", username)
		}
		return errs.Wrap(errs.Unknown, err, "failed to resolve member")
	}
	if org.HasMember(user.ID) {
		return errs.Newf(errs.Conflict, "user %q is already a member", username)
	}

	member := models.OrgMember{UserID: user.ID, Role: role}
	if _, err := s.Store.UpdateOne(ctx, store.Organizations, bson.M{"_id": orgID}, bson.M{"$push": bson.M{"members": member}}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to add member")
	}
	s.linkUser(ctx, user.ID, orgID)
	return nil
}

// RemoveMember removes a user from the organization, unlinks the
// organization from the user record and, best effort, pulls the user out of
// every project the organization owns. A missing project is logged and
// skipped, not fatal.
func (s *OrganizationService) RemoveMember(ctx context.Context, callerID, orgID, userID primitive.ObjectID) error {
	org, err := s.requireAdmin(ctx, callerID, orgID)
	if err != nil {
		return err
	}
	if !org.HasMember(userID) {
		return errs.New(errs.NotFound, "user is not a member of the organization")
	}

	if _, err := s.Store.UpdateOne(ctx, store.Organizations, bson.M{"_id": orgID}, bson.M{"$pull": bson.M{"members": bson.M{"userId": userID}}}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to remove member")
	}
	s.unlinkUser(ctx, userID, orgID)

	var wg sync.WaitGroup
	for _, projectID := range org.Projects {
		wg.Add(1)
		go func(projectID primitive.ObjectID) {
			defer wg.Done()
			matched, err := s.Store.UpdateOne(ctx, store.Projects,
				bson.M{"_id": projectID},
				bson.M{"$pull": bson.M{"users": bson.M{"userId": userID}}})
			if err != nil {
				logging.Logger.Warnf("Event ID: ORG_MEMBER_PROJECT_UNLINK_FAILED, Description: Failed to remove user %s from project %s: %v", userID.Hex(), projectID.Hex(), err)
				return
			}
			if matched == 0 {
				logging.Logger.Warnf("Event ID: ORG_MEMBER_PROJECT_MISSING, Description: Project %s referenced by organization %s does not exist", projectID.Hex(), orgID.Hex())
			}
		}(projectID)
	}
	wg.Wait()
	return nil
}

// AddProject registers a project reference on the organization.
func (s *OrganizationService) AddProject(ctx context.Context, orgID, projectID primitive.ObjectID) error {
	matched, err := s.Store.UpdateOne(ctx, store.Organizations, bson.M{"_id": orgID}, bson.M{"$addToSet": bson.M{"projects": projectID}})
	if err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to register project")
	}
	if matched == 0 {
		return errs.New(errs.NotFound, "organization not found")
	}
	return nil
}

// RemoveProject drops a project reference from the organization.
func (s *OrganizationService) RemoveProject(ctx context.Context, orgID, projectID primitive.ObjectID) error {
	matched, err := s.Store.UpdateOne(ctx, store.Organizations, bson.M{"_id": orgID}, bson.M{"$pull": bson.M{"projects": projectID}})
	if err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to deregister project")
	}
	if matched == 0 {
		return errs.New(errs.NotFound, "organization not found")
	}
	return nil
}

// UpdateOrganization replaces the name and member list. The member diff is
// keyed by user id; additions and removals keep the user back-references in
// sync in both directions.
func (s *OrganizationService) UpdateOrganization(ctx context.Context, callerID, orgID primitive.ObjectID, name string, members []models.OrgMember) (*models.Organization, error) {
	org, err := s.requireAdmin(ctx, callerID, orgID)
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]bool, len(members))
	for _, m := range members {
		if seen[m.UserID] {
			return nil, errs.New(errs.Validation, "duplicate user in member list")
		}
		seen[m.UserID] = true
		if m.Role != models.OrgRoleAdmin && m.Role != models.OrgRoleMember {
			return nil, errs.Newf(errs.Validation, "unknown organization role %q", m.Role)
		}
	}

	if name != org.Name {
		var existing models.Organization
		if err := s.Store.FindOne(ctx, store.Organizations, bson.M{"name": name, "_id": bson.M{"$ne": orgID}}, &existing, nil); err == nil {
			return nil, errs.Newf(errs.Conflict, "organization %q already exists", name)
		} else if !errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.Wrap(errs.Unknown, err, "failed to check organization name")
		}
	}

	current := make(map[primitive.ObjectID]bool, len(org.Members))
	for _, m := range org.Members {
		current[m.UserID] = true
	}

	if _, err := s.Store.UpdateOne(ctx, store.Organizations, bson.M{"_id": orgID}, bson.M{"$set": bson.M{"name": name, "members": members}}); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to update organization")
	}

	for _, m := range members {
		if !current[m.UserID] {
			s.linkUser(ctx, m.UserID, orgID)
		}
	}
	for _, m := range org.Members {
		if !seen[m.UserID] {
			s.unlinkUser(ctx, m.UserID, orgID)
		}
	}

	return s.GetOrganizationByID(ctx, orgID)
}

// DeleteOrganization removes the organization and cascades: every owned
// project (and its tasks) is deleted and the organization reference is pulled
// from every member's user record. Sub-steps are best effort.
func (s *OrganizationService) DeleteOrganization(ctx context.Context, callerID, orgID primitive.ObjectID) error {
	org, err := s.requireAdmin(ctx, callerID, orgID)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, projectID := range org.Projects {
		wg.Add(1)
		go func(projectID primitive.ObjectID) {
			defer wg.Done()
			if _, err := s.Store.DeleteMany(ctx, store.Tasks, bson.M{"project": projectID}); err != nil {
				logging.Logger.Warnf("Event ID: ORG_DELETE_TASKS_FAILED, Description: Failed to delete tasks of project %s: %v", projectID.Hex(), err)
			}
			if _, err := s.Store.DeleteOne(ctx, store.Projects, bson.M{"_id": projectID}); err != nil {
				logging.Logger.Warnf("Event ID: ORG_DELETE_PROJECT_FAILED, Description: Failed to delete project %s: %v", projectID.Hex(), err)
			}
		}(projectID)
	}
	for _, m := range org.Members {
		wg.Add(1)
		go func(userID primitive.ObjectID) {
			defer wg.Done()
			s.unlinkUser(ctx, userID, orgID)
		}(m.UserID)
	}
	wg.Wait()

	if _, err := s.Store.DeleteOne(ctx, store.Organizations, bson.M{"_id": orgID}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to delete organization")
	}

	logging.Logger.Infof("Event ID: ORG_DELETED, Description: Organization %s deleted with %d projects", orgID.Hex(), len(org.Projects))
	return nil
}

// requireAdmin loads the organization and checks the caller holds the admin
// role among its members.
func (s *OrganizationService) requireAdmin(ctx context.Context, callerID, orgID primitive.ObjectID) (*models.Organization, error) {
	org, err := s.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	role, ok := org.MemberRole(callerID)
	if !ok || role != models.OrgRoleAdmin {
		return nil, errs.New(errs.Forbidden, "organization admin role required")
	}
	return org, nil
}

func (s *OrganizationService) linkUser(ctx context.Context, userID, orgID primitive.ObjectID) {
	_, err := s.Store.UpdateOne(ctx, store.Users, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"organizations": orgID}})
	if err != nil {
		logging.Logger.Warnf("Event ID: ORG_BACKLINK_FAILED, Description: Failed to link user %s to organization %s: %v", userID.Hex(), orgID.Hex(), err)
	}
}

func (s *OrganizationService) unlinkUser(ctx context.Context, userID, orgID primitive.ObjectID) {
	_, err := s.Store.UpdateOne(ctx, store.Users, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"organizations": orgID}})
	if err != nil {
		logging.Logger.Warnf("Event ID: ORG_UNLINK_FAILED, Description: Failed to unlink user %s from organization %s: %v", userID.Hex(), orgID.Hex(), err)
	}
}
