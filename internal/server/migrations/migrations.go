// Package migrations embeds the goose SQL migrations of the palette server.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
