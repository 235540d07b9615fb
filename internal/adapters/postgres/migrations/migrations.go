// Package migrations embeds the goose SQL migrations of the auth schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
