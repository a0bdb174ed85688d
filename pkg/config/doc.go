// Package config loads env-tagged configuration structs.
//
// Parsing is delegated to github.com/caarlos0/env/v11 and .env files are read
// with github.com/joho/godotenv. Every configuration type is parsed once and
// cached, so components can call Load independently and observe the same
// values:
//
//	var lockCfg lock.Config
//	config.MustLoad(&lockCfg)
//
//	var queueCfg queue.Config
//	if err := config.Load(&queueCfg); err != nil {
//		return err
//	}
//
// Use LoadEnv to read extra .env files before the first Load, and Reload or
// Reset when the environment changes, which is mostly useful in tests.
package config
