package db

import "embed"

// EmbedMigrations holds the goose SQL migrations for the metastore.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
