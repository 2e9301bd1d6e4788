// Package postgres provides the durable implementation of the task store
// contract on PostgreSQL, using the pgx stdlib driver. Optimistic
// concurrency is enforced with a version column checked on every update.
package postgres
