// Package sqldocs exposes the snapshot table DDL for each SQL store directly
// from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite snapshot DDL.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres snapshot DDL.
//
//go:embed postgres.sql
var Postgres string
