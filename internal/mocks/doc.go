// Package mocks provides shared fakes for tests.
//
// MemoryDB backs in-memory implementations of the store interfaces. Its
// transactions are serialized and roll back on error, so service tests can
// assert the same invariants the Postgres stores enforce. Failures are
// injected per operation with FailOn and call counts are available through
// Calls.
//
//	db := mocks.NewMemoryDB()
//	topic := db.SeedTopic("quantum computing")
//	db.FailOn("terms.Create", errors.New("boom"))
//
// EventRecorder captures emitted task events.
package mocks
