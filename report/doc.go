// Package report turns ingestion outcomes into operator output: a YAML run
// report for archiving and a table for the terminal.
package report
