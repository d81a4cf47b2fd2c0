// Package testdb provides database helpers for integration tests. Tests get
// a migrated database from GetTestDBWithT and run each case inside WithTx,
// whose transaction is always rolled back so cases never see each other's
// rows.
package testdb
