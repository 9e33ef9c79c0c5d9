// Package logging provides structured logging using uber/zap.
//
// Production mode writes JSON, development mode (LOG_DEV) writes colored
// console output. Components receive a *zap.Logger from Component so every
// line carries a "component" field; session scoped lines add Session(id).
//
//	logger := logging.NewDefault()
//	log := logger.Component("registry")
//	log.Info("session created", logging.Session(id))
package logging
