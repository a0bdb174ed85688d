package entity

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// Documents is the subset of collection operations used by Mongo.
type Documents interface {
	FindOne(ctx context.Context, filter bson.M, projection bson.M) (bson.M, error)
	UpdateOne(ctx context.Context, filter, update bson.M) (int64, error)
}

// Collection adapts a driver collection to Documents.
func Collection(c *mongo.Collection) Documents {
	return collection{c}
}

type collection struct {
	c *mongo.Collection
}

func (c collection) FindOne(ctx context.Context, filter, projection bson.M) (bson.M, error) {
	var doc bson.M
	opts := options.FindOne()
	if projection != nil {
		opts.SetProjection(projection)
	}
	if err := c.c.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (c collection) UpdateOne(ctx context.Context, filter, update bson.M) (int64, error) {
	res, err := c.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// Mongo stores entity state in document fields: one collection per entity type.
type Mongo struct {
	resolve   func(entityType string) Documents
	objectIDs bool
}

// MongoOption configures a Mongo store.
type MongoOption func(*Mongo)

// WithObjectIDs treats entity ids as hex ObjectIDs instead of plain strings.
func WithObjectIDs() MongoOption {
	return func(m *Mongo) { m.objectIDs = true }
}

// NewMongo creates a store using the collection named after each entity type.
func NewMongo(db *mongo.Database, opts ...MongoOption) *Mongo {
	return NewMongoFromDocuments(func(entityType string) Documents {
		return Collection(db.Collection(entityType))
	}, opts...)
}

// NewMongoFromDocuments creates a store with a custom collection resolver.
func NewMongoFromDocuments(resolve func(entityType string) Documents, opts ...MongoOption) *Mongo {
	m := &Mongo{resolve: resolve}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mongo) filter(id string) (bson.M, error) {
	if !m.objectIDs {
		return bson.M{"_id": id}, nil
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.Join(ErrInvalidID, err)
	}
	return bson.M{"_id": oid}, nil
}

func (m *Mongo) Get(ctx context.Context, e statemachine.Entity, field string) (string, error) {
	if field == "" {
		return "", ErrInvalidField
	}
	filter, err := m.filter(e.EntityID())
	if err != nil {
		return "", err
	}

	doc, err := m.resolve(e.EntityType()).FindOne(ctx, filter, bson.M{field: 1})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read %s of %s/%s: %w", field, e.EntityType(), e.EntityID(), err)
	}

	switch v := doc[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (m *Mongo) Set(ctx context.Context, e statemachine.Entity, field, value string) error {
	if field == "" {
		return ErrInvalidField
	}
	filter, err := m.filter(e.EntityID())
	if err != nil {
		return err
	}

	matched, err := m.resolve(e.EntityType()).UpdateOne(ctx, filter, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("write %s of %s/%s: %w", field, e.EntityType(), e.EntityID(), err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Load(ctx context.Context, entityType, id string) (statemachine.Entity, error) {
	filter, err := m.filter(id)
	if err != nil {
		return nil, err
	}
	if _, err := m.resolve(entityType).FindOne(ctx, filter, bson.M{"_id": 1}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s/%s: %w", entityType, id, err)
	}
	return NewRef(entityType, id), nil
}
