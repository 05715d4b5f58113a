// Package migrations embeds the goose migrations of the CLI's sqlite history.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
