// Package logging builds the slog loggers used across slicerd.
//
// It provides JSON and console handlers selected by configuration, attribute
// helpers so call sites stay terse, and component loggers whose "component"
// attribute becomes the console prefix. Construct loggers through
// NewFromConfig so file outputs land in the configured log directory.
package logging
