// Package log provides the logging abstraction used across serially.
//
// Logger is implemented by a zerolog adapter and a no-op logger for tests.
// NewConsoleLogger builds the operator-facing reporter:
//
//	logger := log.NewConsoleLogger(log.ConsoleOptions{Debug: true})
//	defer logger.Close()
//	logger.Info("Using catalog", log.String("path", path))
//	logger.Found("lib1.jar found on remote host")
//
// Console lines are prefixed by kind ([*], [+], [!], [D]). When LogFile is
// set, every event including debug traces is also written there as JSON.
package log
