// Package resolver upgrades placeholder identifiers to verified ISBNs.
//
// A record whose identifier is an internal placeholder moves through
//
//	no-identifier -> api-lookup -> {identifier-found | api-empty}
//	api-empty -> scrape -> {identifier-found | scrape-failed} -> terminal
//
// The scrape step renders the work's editions page in a browser session and
// scans its text for an identifier next to a known label. Only transient
// navigation failures are retried. Every opened session is closed on every
// path, and the number of open sessions is capped.
package resolver
