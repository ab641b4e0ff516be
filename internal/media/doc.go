// Package media holds the shared transcript and segment types passed between
// pipeline stages and stage adapters.
package media
