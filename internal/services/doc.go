// Package services defines the error classification shared by stage adapters
// and the context annotations used to thread task, stage, and request
// identifiers through logging.
package services
