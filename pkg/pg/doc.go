// Package pg connects to PostgreSQL with pgx/v5 and applies goose migrations
// for the tables that hold entity state.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
//
//	store := entity.NewPostgres(pool)
//
// The Is* helpers classify pgx errors so callers can map them to domain errors
// without importing pgconn.
package pg
