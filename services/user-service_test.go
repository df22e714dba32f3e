package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/models"
	"taskboard-project/backend/store"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.registerUser(t, "alice")
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Empty(t, user.Password)

	// the stored password is hashed, not the plaintext
	var stored models.User
	require.NoError(t, f.store.FindOne(ctx, store.Users, bson.M{"username": "alice"}, &stored, nil))
	assert.NotEmpty(t, stored.Password)
	assert.NotEqual(t, testPassword, stored.Password)
}

func TestRegisterDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerUser(t, "alice")

	_, err := f.users.Register(ctx, "alice", "other@example.com", testPassword, "")
	assert.Equal(t, errs.Conflict, errs.KindOf(err))

	_, err = f.users.Register(ctx, "bob", "alice@example.com", testPassword, "")
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestRegisterWeakPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.Register(context.Background(), "alice", "alice@example.com", "short", "")
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.registerUser(t, "alice")

	user, token, err := f.users.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)
	assert.Empty(t, user.Password)

	userID, err := f.jwt.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, userID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerUser(t, "alice")

	_, _, wrongPassword := f.users.Login(ctx, "alice@example.com", "Wrong.Pass1")
	_, _, unknownEmail := f.users.Login(ctx, "nobody@example.com", testPassword)

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(wrongPassword))
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(unknownEmail))
}

func TestSearchUsersPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 23; i++ {
		f.registerUser(t, fmt.Sprintf("user%02d", i))
	}

	users, totalPages, err := f.users.SearchUsers(ctx, "user", 1)
	require.NoError(t, err)
	assert.Len(t, users, 10)
	assert.Equal(t, 3, totalPages)

	users, _, err = f.users.SearchUsers(ctx, "user", 3)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	_, _, err = f.users.SearchUsers(ctx, "user", 4)
	assert.Equal(t, errs.PageOutOfRange, errs.KindOf(err))

	// prefix match is case-insensitive and passwords never leak
	users, _, err = f.users.SearchUsers(ctx, "USER0", 1)
	require.NoError(t, err)
	require.NotEmpty(t, users)
	for _, u := range users {
		assert.Empty(t, u.Password)
	}
}

func TestSearchUsersEmptyFirstPage(t *testing.T) {
	f := newFixture(t)
	users, totalPages, err := f.users.SearchUsers(context.Background(), "nomatch", 1)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Zero(t, totalPages)
}

func TestUpdateUserRoleRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	bob := f.registerUser(t, "bob")

	// a regular user cannot promote anyone, including themselves
	_, err := f.users.UpdateUser(ctx, alice.ID, alice.ID, UserUpdate{Role: models.RoleAdmin})
	assert.Equal(t, errs.Forbidden, errs.KindOf(err))

	// but self profile updates are allowed
	updated, err := f.users.UpdateUser(ctx, alice.ID, alice.ID, UserUpdate{Avatar: "/avatars/alice.png"})
	require.NoError(t, err)
	assert.Equal(t, "/avatars/alice.png", updated.Avatar)

	// a regular user cannot touch other users
	_, err = f.users.UpdateUser(ctx, alice.ID, bob.ID, UserUpdate{Avatar: "/x.png"})
	assert.Equal(t, errs.Forbidden, errs.KindOf(err))

	// an admin can change roles
	_, err = f.store.UpdateOne(ctx, store.Users, bson.M{"_id": alice.ID}, bson.M{"$set": bson.M{"role": models.RoleAdmin}})
	require.NoError(t, err)
	updated, err = f.users.UpdateUser(ctx, alice.ID, bob.ID, UserUpdate{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
}

func TestUpdateUserUsernameConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	f.registerUser(t, "bob")

	_, err := f.users.UpdateUser(ctx, alice.ID, alice.ID, UserUpdate{Username: "bob"})
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestDeleteUserCascadesOrganizationMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")
	bob := f.registerUser(t, "bob")
	org := f.createOrg(t, alice.ID, "acme", "bob")

	require.NoError(t, f.users.DeleteUser(ctx, bob.ID))

	_, err := f.users.GetUserByID(ctx, bob.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	refreshed, err := f.orgs.GetOrganizationByID(ctx, org.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.HasMember(bob.ID))
	assert.True(t, refreshed.HasMember(alice.ID))
}

func TestGetUserByUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")

	user, err := f.users.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Empty(t, user.Password)

	_, err = f.users.GetUserByUsername(ctx, "ghost")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")

	err := f.users.ChangePassword(ctx, alice.ID, "Wrong.Pass1", "New.Secret2", "New.Secret2")
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))

	err = f.users.ChangePassword(ctx, alice.ID, testPassword, "New.Secret2", "mismatch")
	assert.Equal(t, errs.Validation, errs.KindOf(err))

	require.NoError(t, f.users.ChangePassword(ctx, alice.ID, testPassword, "New.Secret2", "New.Secret2"))
	_, _, err = f.users.Login(ctx, "alice@example.com", "New.Secret2")
	require.NoError(t, err)
}

func TestIsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.registerUser(t, "alice")

	isAdmin, err := f.users.IsAdmin(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	_, err = f.store.UpdateOne(ctx, store.Users, bson.M{"_id": alice.ID}, bson.M{"$set": bson.M{"role": models.RoleAdmin}})
	require.NoError(t, err)

	isAdmin, err = f.users.IsAdmin(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}
