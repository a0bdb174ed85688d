package entity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/statekit/pkg/pg"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

// Querier is the subset of *pgxpool.Pool, *pgx.Conn and pgx.Tx used by Postgres.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores entity state in table columns: one table per entity type,
// one row per entity and the state field as a column.
type Postgres struct {
	db       Querier
	tables   map[string]string
	idColumn string
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithTable maps an entity type to a table. Unmapped types use their type name.
func WithTable(entityType, table string) PostgresOption {
	return func(p *Postgres) { p.tables[entityType] = table }
}

// WithIDColumn sets the primary key column, "id" by default.
func WithIDColumn(column string) PostgresOption {
	return func(p *Postgres) { p.idColumn = column }
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db Querier, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, tables: make(map[string]string), idColumn: "id"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) table(entityType string) string {
	if t, ok := p.tables[entityType]; ok {
		return t
	}
	return entityType
}

func (p *Postgres) Get(ctx context.Context, e statemachine.Entity, field string) (string, error) {
	if field == "" {
		return "", ErrInvalidField
	}

	query := fmt.Sprintf("SELECT %s::text FROM %s WHERE %s::text = $1",
		pgx.Identifier{field}.Sanitize(),
		pgx.Identifier{p.table(e.EntityType())}.Sanitize(),
		pgx.Identifier{p.idColumn}.Sanitize(),
	)

	var value *string
	if err := p.db.QueryRow(ctx, query, e.EntityID()).Scan(&value); err != nil {
		if pg.IsNotFoundError(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read %s of %s/%s: %w", field, e.EntityType(), e.EntityID(), err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

func (p *Postgres) Set(ctx context.Context, e statemachine.Entity, field, value string) error {
	if field == "" {
		return ErrInvalidField
	}

	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s::text = $2",
		pgx.Identifier{p.table(e.EntityType())}.Sanitize(),
		pgx.Identifier{field}.Sanitize(),
		pgx.Identifier{p.idColumn}.Sanitize(),
	)

	tag, err := p.db.Exec(ctx, query, value, e.EntityID())
	if err != nil {
		return fmt.Errorf("write %s of %s/%s: %w", field, e.EntityType(), e.EntityID(), err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, entityType, id string) (statemachine.Entity, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s::text = $1",
		pgx.Identifier{p.table(entityType)}.Sanitize(),
		pgx.Identifier{p.idColumn}.Sanitize(),
	)

	var one int
	if err := p.db.QueryRow(ctx, query, id).Scan(&one); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s/%s: %w", entityType, id, err)
	}
	return NewRef(entityType, id), nil
}
