package services

import (
	"context"
	"errors"
	"html"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/logging"
	"taskboard-project/backend/models"
	"taskboard-project/backend/store"
	"taskboard-project/backend/utils"
)

type UserService struct {
	Store      store.Store
	JWTService *JWTService
	PageSize   int
}

func NewUserService(st store.Store, jwtService *JWTService, pageSize int) *UserService {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &UserService{Store: st, JWTService: jwtService, PageSize: pageSize}
}

// Register creates a new account. Usernames and emails are unique, passwords
// are checked against the policy and stored hashed, and the role always
// starts as a regular user.
func (s *UserService) Register(ctx context.Context, username, email, password, avatar string) (*models.User, error) {
	var existing models.User
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"username": username}, &existing, nil); err == nil {
		return nil, errs.Newf(errs.Conflict, "user with username %q already exists", username)
	} else if !errors.Is(err, store.ErrNoDocuments) {
		return nil, errs.Wrap(errs.Unknown, err, "failed to check username")
	}
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"email": email}, &existing, nil); err == nil {
		return nil, errs.Newf(errs.Conflict, "user with email %q already exists", email)
	} else if !errors.Is(err, store.ErrNoDocuments) {
		return nil, errs.Wrap(errs.Unknown, err, "failed to check email")
	}

	if err := utils.ValidatePassword(password); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to hash password")
	}

	user := models.User{
		Username:      html.EscapeString(username),
		Email:         html.EscapeString(email),
		Password:      hashed,
		Role:          models.RoleUser,
		Avatar:        avatar,
		Organizations: []primitive.ObjectID{},
	}

	id, err := s.Store.InsertOne(ctx, store.Users, user)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "failed to save user")
	}
	user.ID = id
	user.Sanitize()

	logging.Logger.Infof("Event ID: USER_REGISTERED, Description: User %s registered with id %s", user.Username, id.Hex())
	return &user, nil
}

// Login verifies credentials and issues a bearer token. Unknown email and
// wrong password produce the same generic failure so neither is revealed.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	var user models.User
	err := s.Store.FindOne(ctx, store.Users, bson.M{"email": email}, &user, nil)
	if err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, "", errs.New(errs.Unauthenticated, "authentication failed")
		}
		return nil, "", errs.Wrap(errs.Unknown, err, "failed to look up user")
	}

	if !utils.CheckPassword(user.Password, password) {
		return nil, "", errs.New(errs.Unauthenticated, "authentication failed")
	}

	token, err := s.JWTService.IssueToken(user.ID)
	if err != nil {
		return nil, "", errs.Wrap(errs.Unknown, err, "failed to generate token")
	}

	user.Sanitize()
	return &user, token, nil
}

// SearchUsers pages through users whose username or email starts with the
// query, case-insensitively. An empty query lists everyone.
func (s *UserService) SearchUsers(ctx context.Context, query string, page int) ([]models.User, int, error) {
	filter := bson.M{}
	if query != "" {
		pattern := prefixPattern(query)
		filter = bson.M{"$or": bson.A{
			bson.M{"username": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"email": bson.M{"$regex": pattern, "$options": "i"}},
		}}
	}

	total, err := s.Store.Count(ctx, store.Users, filter)
	if err != nil {
		return nil, 0, errs.Wrap(errs.Unknown, err, "failed to count users")
	}
	skip, limit, totalPages, err := pageWindow(total, page, s.PageSize)
	if err != nil {
		return nil, totalPages, err
	}

	var users []models.User
	opts := &store.FindOptions{
		Projection: bson.M{"password": 0},
		Sort:       bson.D{{Key: "username", Value: 1}},
		Skip:       skip,
		Limit:      limit,
	}
	if err := s.Store.Find(ctx, store.Users, filter, &users, opts); err != nil {
		return nil, totalPages, errs.Wrap(errs.Unknown, err, "failed to fetch users")
	}
	for i := range users {
		users[i].Sanitize()
	}
	return users, totalPages, nil
}

// UserUpdate carries the optional profile fields; empty values are skipped.
type UserUpdate struct {
	Username string
	Email    string
	Avatar   string
	Password string
	Role     models.UserRole
}

// UpdateUser applies a partial profile update. Self-updates are always
// allowed; updating someone else or changing a role requires an admin caller.
func (s *UserService) UpdateUser(ctx context.Context, callerID, userID primitive.ObjectID, upd UserUpdate) (*models.User, error) {
	caller, err := s.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if callerID != userID && caller.Role != models.RoleAdmin {
		return nil, errs.New(errs.Forbidden, "only admins can update other users")
	}
	if upd.Role != "" && caller.Role != models.RoleAdmin {
		return nil, errs.New(errs.Forbidden, "only admins can change user roles")
	}

	set := bson.M{}
	if upd.Username != "" {
		var existing models.User
		err := s.Store.FindOne(ctx, store.Users, bson.M{"username": upd.Username, "_id": bson.M{"$ne": userID}}, &existing, nil)
		if err == nil {
			return nil, errs.Newf(errs.Conflict, "user with username %q already exists", upd.Username)
		} else if !errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.Wrap(errs.Unknown, err, "failed to check username")
		}
		set["username"] = html.EscapeString(upd.Username)
	}
	if upd.Email != "" {
		var existing models.User
		err := s.Store.FindOne(ctx, store.Users, bson.M{"email": upd.Email, "_id": bson.M{"$ne": userID}}, &existing, nil)
		if err == nil {
			return nil, errs.Newf(errs.Conflict, "user with email %q already exists", upd.Email)
		} else if !errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.Wrap(errs.Unknown, err, "failed to check email")
		}
		set["email"] = html.EscapeString(upd.Email)
	}
	if upd.Avatar != "" {
		set["avatar"] = upd.Avatar
	}
	if upd.Password != "" {
		if err := utils.ValidatePassword(upd.Password); err != nil {
			return nil, err
		}
		hashed, err := utils.HashPassword(upd.Password)
		if err != nil {
			return nil, errs.Wrap(errs.Unknown, err, "failed to hash password")
		}
		set["password"] = hashed
	}
	if upd.Role != "" {
		if upd.Role != models.RoleAdmin && upd.Role != models.RoleUser {
			return nil, errs.Newf(errs.Validation, "unknown role %q", upd.Role)
		}
		set["role"] = upd.Role
	}

	if len(set) > 0 {
		matched, err := s.Store.UpdateOne(ctx, store.Users, bson.M{"_id": userID}, bson.M{"$set": set})
		if err != nil {
			return nil, errs.Wrap(errs.Unknown, err, "failed to update user")
		}
		if matched == 0 {
			return nil, errs.New(errs.NotFound, "user not found")
		}
	}

	return s.GetUserByID(ctx, userID)
}

// DeleteUser removes the account and, best effort, its membership entries
// from every organization the user belonged to.
func (s *UserService) DeleteUser(ctx context.Context, userID primitive.ObjectID) error {
	var user models.User
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"_id": userID}, &user, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return errs.New(errs.NotFound, "user not found")
		}
		return errs.Wrap(errs.Unknown, err, "failed to look up user")
	}

	var wg sync.WaitGroup
	for _, orgID := range user.Organizations {
		wg.Add(1)
		go func(orgID primitive.ObjectID) {
			defer wg.Done()
			_, err := s.Store.UpdateOne(ctx, store.Organizations,
				bson.M{"_id": orgID},
				bson.M{"$pull": bson.M{"members": bson.M{"userId": userID}}})
			if err != nil {
				logging.Logger.Warnf("Event ID: USER_DELETE_UNLINK_FAILED, Description: Failed to remove user %s from organization %s: %v", userID.Hex(), orgID.Hex(), err)
			}
		}(orgID)
	}
	wg.Wait()

	if _, err := s.Store.DeleteOne(ctx, store.Users, bson.M{"_id": userID}); err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to delete user")
	}

	logging.Logger.Infof("Event ID: USER_DELETED, Description: User %s deleted", userID.Hex())
	return nil
}

// ChangePassword verifies the old password before storing a new one.
func (s *UserService) ChangePassword(ctx context.Context, userID primitive.ObjectID, oldPassword, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return errs.New(errs.Validation, "new password and confirmation do not match")
	}

	var user models.User
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"_id": userID}, &user, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return errs.New(errs.NotFound, "user not found")
		}
		return errs.Wrap(errs.Unknown, err, "failed to look up user")
	}

	if !utils.CheckPassword(user.Password, oldPassword) {
		return errs.New(errs.Unauthenticated, "old password is incorrect")
	}
	if err := utils.ValidatePassword(newPassword); err != nil {
		return err
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to hash new password")
	}

	_, err = s.Store.UpdateOne(ctx, store.Users, bson.M{"_id": userID}, bson.M{"$set": bson.M{"password": hashed}})
	if err != nil {
		return errs.Wrap(errs.Unknown, err, "failed to update password")
	}
	return nil
}

// IsAdmin reports whether the user holds the global admin role.
func (s *UserService) IsAdmin(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Role == models.RoleAdmin, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"_id": userID}, &user, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.New(errs.NotFound, "user not found")
		}
		return nil, errs.Wrap(errs.Unknown, err, "failed to look up user")
	}
	user.Sanitize()
	return &user, nil
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.Store.FindOne(ctx, store.Users, bson.M{"username": username}, &user, nil); err != nil {
		if errors.Is(err, store.ErrNoDocuments) {
			return nil, errs.Newf(errs.NotFound, "user %q not found", username)
		}
		return nil, errs.Wrap(errs.Unknown, err, "failed to look up user")
	}
	user.Sanitize()
	return &user, nil
}
