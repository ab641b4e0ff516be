// Package language provides the closed catalogue of subtitle languages the
// pipeline accepts, plus helpers for normalizing submitted codes and matching
// recognizer-detected source languages against requested targets.
package language
