// Package quota implements the tiered quota and cost governor.
//
// Every user has request, token and cost limits over minute, hour and day
// windows, plus a ceiling on the estimated cost of a single request. A global
// daily cost budget applies across all users. Counters live in a
// store.QuotaCounterStore under keys that embed the window start, so a window
// resets by moving on to a new key rather than through a background sweep.
//
// Admission is a single atomic compare-and-increment against the counter
// store: two concurrent requests can never both pass a check that only one
// unit of quota permits.
package quota
