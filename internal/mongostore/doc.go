// Package mongostore executes compiled pipelines and mutation ops against
// MongoDB through the official Go driver.
//
// Every call runs under the configured per-operation timeout. Errors are
// returned wrapped with the collection and call; the engine classifies
// them, and this package never retries.
package mongostore
