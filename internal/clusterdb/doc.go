// Package clusterdb persists clustering runs and their clusters in SQLite.
// The schema is managed by embedded golang-migrate migrations.
package clusterdb
