package store

import "embed"

// migrationsFS embeds the SQL migration files applied on startup.
//
//go:embed migrations
var migrationsFS embed.FS
