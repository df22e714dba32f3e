package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/errs"
)

func TestIssueAndVerifyToken(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	userID := primitive.NewObjectID()

	token, err := svc.IssueToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestVerifyTokenFailuresAreUniform(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	other := NewJWTService("other-secret", time.Hour)
	userID := primitive.NewObjectID()

	foreign, err := other.IssueToken(userID)
	require.NoError(t, err)

	expiredSvc := NewJWTService("test-secret", time.Nanosecond)
	expired, err := expiredSvc.IssueToken(userID)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	for name, token := range map[string]string{
		"malformed":       "not-a-token",
		"wrong signature": foreign,
		"expired":         expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.VerifyToken(token)
			require.Error(t, err)
			assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))
			assert.Equal(t, "invalid token", err.Error())
		})
	}
}
