// Package mongo connects to MongoDB with the v2 driver for entity documents.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	store := entity.NewMongo(db)
//
// Connection failures wrap the driver error with errors.Join.
package mongo
