// Package logger builds *slog.Logger values for the engine, the worker and the
// command line tool.
//
// New takes functional options selecting the output format and minimum level,
// static attributes and ContextExtractor callbacks. The handler it creates is
// wrapped in LogHandlerDecorator, which runs the extractors on every record so
// that the ids of the running invocation are attached without passing them
// around explicitly.
//
//	level, err := logger.ParseLevel(os.Getenv("STATEKIT_LOG_LEVEL"))
//	if err != nil {
//		return err
//	}
//	log := logger.New(
//		logger.WithLevel(level),
//		logger.WithTextFormatter(),
//		logger.WithContextExtractors(statemachine.LogExtractors()...),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "transition resumed",
//		logger.Action("submit"),
//		logger.Duration(time.Since(start)),
//	)
//
// The attribute helpers in attr.go (TrID, RootID, Action, Process, EntityKey,
// TaskID and others) keep key names consistent across packages. Error and
// Errors return an empty attribute for nil errors, so
//
//	log.Info("lock released", logger.Error(err))
//
// needs no nil check.
package logger
