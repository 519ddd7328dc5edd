// Package migrations embeds the versioned SQL schema so binaries and tests
// can migrate without a checkout of this directory.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file
//
//go:embed *.sql
var FS embed.FS
