// Package sync moves completed audits up to the web service and pulls a
// fresh store and product catalog down.
//
// A pass runs the steps in a fixed order:
//
//	completed audits ──upload──▶ web service   (each one deleted locally once accepted)
//	web service ──stores──┐
//	web service ──products┴──▶ catalog refresh (one transaction)
//
// The catalog is never fetched while uploads are pending: the first upload
// failure ends the pass and leaves that audit and every later one in the
// local database. Deletions of audits already accepted are kept even when a
// later step fails or the pass is canceled.
//
// Progress is reported to an optional Observer as Events, one per state
// change, ending with a terminal Done, Failed or Canceled event.
package sync
