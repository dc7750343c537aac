// Package migrations embeds the SQL migration files into the binary, so
// deckscan can create its run history schema without the files on disk.
//
//	db.Migrate(ctx, migrations.FS)
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql file of this directory.
//
//go:embed *.sql
var FS embed.FS
