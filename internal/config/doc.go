// Package config defines the application's configuration structures and
// loading logic. Values come from environment variables with the QUIZSMITH_
// prefix, optionally layered over a config.yaml file, and are validated at
// load time so the rest of the application can trust them.
package config
