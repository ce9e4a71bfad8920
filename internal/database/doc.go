// Package database opens the PostgreSQL connection shared by the audit sink
// and the permission store, and applies the embedded schema migrations.
package database
