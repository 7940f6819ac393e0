// Package database is the connection bootstrap collaborator: it opens and
// manages Bun connections for MySQL, PostgreSQL and SQLite, applies pool and
// health-check configuration, registers models for table bootstrap, and
// classifies storage errors across dialects.
package database
