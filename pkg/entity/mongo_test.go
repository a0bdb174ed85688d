package entity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/statekit/pkg/entity"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

var (
	_ statemachine.Accessor = (*entity.Mongo)(nil)
	_ statemachine.Loader   = (*entity.Mongo)(nil)
)

// fakeDocuments keeps documents keyed by their _id value.
type fakeDocuments struct {
	docs    map[any]bson.M
	err     error
	filters []bson.M
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{docs: make(map[any]bson.M)}
}

func (f *fakeDocuments) FindOne(_ context.Context, filter, _ bson.M) (bson.M, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[filter["_id"]]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocuments) UpdateOne(_ context.Context, filter, update bson.M) (int64, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return 0, f.err
	}
	doc, ok := f.docs[filter["_id"]]
	if !ok {
		return 0, nil
	}
	for k, v := range update["$set"].(bson.M) {
		doc[k] = v
	}
	return 1, nil
}

func TestMongo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get and set", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocuments()
		docs.docs["1"] = bson.M{"_id": "1", "status": "draft"}

		var resolved []string
		store := entity.NewMongoFromDocuments(func(entityType string) entity.Documents {
			resolved = append(resolved, entityType)
			return docs
		})
		ref := entity.NewRef("document", "1")

		v, err := store.Get(ctx, ref, "status")
		require.NoError(t, err)
		assert.Equal(t, "draft", v)

		require.NoError(t, store.Set(ctx, ref, "status", "published"))
		v, err = store.Get(ctx, ref, "status")
		require.NoError(t, err)
		assert.Equal(t, "published", v)
		assert.Equal(t, []string{"document", "document", "document"}, resolved)
	})

	t.Run("non-string and missing fields", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocuments()
		docs.docs["1"] = bson.M{"_id": "1", "step": int32(3)}
		store := entity.NewMongoFromDocuments(func(string) entity.Documents { return docs })
		ref := entity.NewRef("document", "1")

		v, err := store.Get(ctx, ref, "step")
		require.NoError(t, err)
		assert.Equal(t, "3", v)

		v, err = store.Get(ctx, ref, "status")
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("missing document", func(t *testing.T) {
		t.Parallel()

		store := entity.NewMongoFromDocuments(func(string) entity.Documents { return newFakeDocuments() })
		ref := entity.NewRef("document", "404")

		_, err := store.Get(ctx, ref, "status")
		assert.ErrorIs(t, err, entity.ErrNotFound)
		assert.ErrorIs(t, store.Set(ctx, ref, "status", "x"), entity.ErrNotFound)
		_, err = store.Load(ctx, "document", "404")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("object ids", func(t *testing.T) {
		t.Parallel()

		oid := bson.NewObjectID()
		docs := newFakeDocuments()
		docs.docs[oid] = bson.M{"_id": oid, "status": "draft"}
		store := entity.NewMongoFromDocuments(func(string) entity.Documents { return docs }, entity.WithObjectIDs())

		v, err := store.Get(ctx, entity.NewRef("document", oid.Hex()), "status")
		require.NoError(t, err)
		assert.Equal(t, "draft", v)

		_, err = store.Get(ctx, entity.NewRef("document", "not-hex"), "status")
		assert.ErrorIs(t, err, entity.ErrInvalidID)

		e, err := store.Load(ctx, "document", oid.Hex())
		require.NoError(t, err)
		assert.Equal(t, oid.Hex(), e.EntityID())
	})

	t.Run("driver errors are wrapped", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("server selection timeout")
		docs := newFakeDocuments()
		docs.err = boom
		store := entity.NewMongoFromDocuments(func(string) entity.Documents { return docs })
		ref := entity.NewRef("document", "1")

		_, err := store.Get(ctx, ref, "status")
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, store.Set(ctx, ref, "status", "x"), boom)
	})

	t.Run("empty field", func(t *testing.T) {
		t.Parallel()

		store := entity.NewMongoFromDocuments(func(string) entity.Documents { return newFakeDocuments() })
		_, err := store.Get(ctx, entity.NewRef("d", "1"), "")
		assert.ErrorIs(t, err, entity.ErrInvalidField)
	})
}
