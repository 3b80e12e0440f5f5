// Package batch runs chunk-oriented jobs.
//
// A Job is an ordered list of Steps. A ChunkStep reads items one at a time,
// processes them, and writes them in chunks, one transaction per chunk. A
// Policy decides which failures are retried, which items are skipped, and
// how many skips a step execution may accumulate before it fails. Skipped
// items are handed to a SkipListener. The Launcher records every run in a
// JobRepository and refuses to start a job whose key is running or already
// complete.
package batch
