package workers

import "propsync/models"

// LogFunc is a function that logs to the import_logs table
type LogFunc func(level models.LogLevel, feedName, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, feedName, message string) {}
