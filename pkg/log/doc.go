/*
Package log provides structured logging for keel built on zerolog.

Call Init once at process start, then use the package helpers or derive child
loggers scoped to a component, a cluster, or an action:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithCluster("default", "c1")
	logger.Info().Str("step", "cluster-init").Msg("step triggered")

Errors are always attached with Err so cause chains survive into the
structured output.
*/
package log
