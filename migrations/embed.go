// Package migrations embeds the local credential store schema.
package migrations

import "embed"

// FS holds goose SQL migrations.
//
//go:embed *.sql
var FS embed.FS
