// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for every table the service owns. Statements are
// idempotent so the file can be re-applied on every boot.
//
//go:embed migrations/001_schema.sql
var Schema string
