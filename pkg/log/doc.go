// Package log provides the structured logger shared by every process role
// (secondary, centralized broker, main evaluator, main broker). It wraps
// zerolog with a package-global Logger and a handful of component-scoped
// child-logger constructors.
package log
