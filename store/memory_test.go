package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memDoc struct {
	ID    primitive.ObjectID   `bson:"_id,omitempty"`
	Name  string               `bson:"name"`
	Email string               `bson:"email"`
	Tags  []primitive.ObjectID `bson:"tags"`
	Score float64              `bson:"score"`
}

func TestMemoryStoreInsertAndFindOne(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	id, err := st.InsertOne(ctx, "docs", memDoc{Name: "alpha", Email: "alpha@example.com"})
	require.NoError(t, err)
	assert.False(t, id.IsZero())

	var got memDoc
	require.NoError(t, st.FindOne(ctx, "docs", bson.M{"name": "alpha"}, &got, nil))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "alpha@example.com", got.Email)

	err = st.FindOne(ctx, "docs", bson.M{"name": "missing"}, &got, nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestMemoryStoreRegexAndOr(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	for _, name := range []string{"Backend", "Frontend", "Design"} {
		_, err := st.InsertOne(ctx, "docs", memDoc{Name: name, Email: name + "@x.com"})
		require.NoError(t, err)
	}

	var docs []memDoc
	filter := bson.M{"name": bson.M{"$regex": "end", "$options": "i"}}
	require.NoError(t, st.Find(ctx, "docs", filter, &docs, nil))
	assert.Len(t, docs, 2)

	docs = nil
	filter = bson.M{"$or": bson.A{
		bson.M{"name": bson.M{"$regex": "^back", "$options": "i"}},
		bson.M{"email": bson.M{"$regex": "^design", "$options": "i"}},
	}}
	require.NoError(t, st.Find(ctx, "docs", filter, &docs, nil))
	assert.Len(t, docs, 2)
}

func TestMemoryStoreArrayContainment(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	tag := primitive.NewObjectID()

	_, err := st.InsertOne(ctx, "docs", memDoc{Name: "tagged", Tags: []primitive.ObjectID{tag}})
	require.NoError(t, err)
	_, err = st.InsertOne(ctx, "docs", memDoc{Name: "untagged"})
	require.NoError(t, err)

	n, err := st.Count(ctx, "docs", bson.M{"tags": tag})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = st.Count(ctx, "docs", bson.M{"name": bson.M{"$in": bson.A{"tagged", "untagged"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStoreUpdateOperators(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	tag := primitive.NewObjectID()

	id, err := st.InsertOne(ctx, "docs", memDoc{Name: "doc", Score: 1})
	require.NoError(t, err)

	matched, err := st.UpdateOne(ctx, "docs", bson.M{"_id": id}, bson.M{"$set": bson.M{"score": 42.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), matched)

	_, err = st.UpdateOne(ctx, "docs", bson.M{"_id": id}, bson.M{"$addToSet": bson.M{"tags": tag}})
	require.NoError(t, err)
	// a second $addToSet of the same value is a no-op
	_, err = st.UpdateOne(ctx, "docs", bson.M{"_id": id}, bson.M{"$addToSet": bson.M{"tags": tag}})
	require.NoError(t, err)

	var got memDoc
	require.NoError(t, st.FindOne(ctx, "docs", bson.M{"_id": id}, &got, nil))
	assert.Equal(t, 42.0, got.Score)
	assert.Equal(t, []primitive.ObjectID{tag}, got.Tags)

	_, err = st.UpdateOne(ctx, "docs", bson.M{"_id": id}, bson.M{"$pull": bson.M{"tags": tag}})
	require.NoError(t, err)
	require.NoError(t, st.FindOne(ctx, "docs", bson.M{"_id": id}, &got, nil))
	assert.Empty(t, got.Tags)
}

func TestMemoryStorePullSubdocument(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	userID := primitive.NewObjectID()

	type member struct {
		UserID primitive.ObjectID `bson:"userId"`
		Role   string             `bson:"role"`
	}
	type org struct {
		ID      primitive.ObjectID `bson:"_id,omitempty"`
		Members []member           `bson:"members"`
	}

	id, err := st.InsertOne(ctx, "orgs", org{Members: []member{
		{UserID: userID, Role: "admin"},
		{UserID: primitive.NewObjectID(), Role: "member"},
	}})
	require.NoError(t, err)

	_, err = st.UpdateOne(ctx, "orgs", bson.M{"_id": id}, bson.M{"$pull": bson.M{"members": bson.M{"userId": userID}}})
	require.NoError(t, err)

	var got org
	require.NoError(t, st.FindOne(ctx, "orgs", bson.M{"_id": id}, &got, nil))
	require.Len(t, got.Members, 1)
	assert.NotEqual(t, userID, got.Members[0].UserID)
}

func TestMemoryStoreProjectionSortSkipLimit(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	for _, name := range []string{"charlie", "alice", "bob", "dave"} {
		_, err := st.InsertOne(ctx, "docs", memDoc{Name: name, Email: "secret"})
		require.NoError(t, err)
	}

	var docs []memDoc
	opts := &FindOptions{
		Projection: bson.M{"email": 0},
		Sort:       bson.D{{Key: "name", Value: 1}},
		Skip:       1,
		Limit:      2,
	}
	require.NoError(t, st.Find(ctx, "docs", bson.M{}, &docs, opts))
	require.Len(t, docs, 2)
	assert.Equal(t, "bob", docs[0].Name)
	assert.Equal(t, "charlie", docs[1].Name)
	assert.Empty(t, docs[0].Email)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	for i := 0; i < 3; i++ {
		_, err := st.InsertOne(ctx, "docs", memDoc{Name: "dup"})
		require.NoError(t, err)
	}

	deleted, err := st.DeleteOne(ctx, "docs", bson.M{"name": "dup"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = st.DeleteMany(ctx, "docs", bson.M{"name": "dup"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	n, err := st.Count(ctx, "docs", bson.M{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
