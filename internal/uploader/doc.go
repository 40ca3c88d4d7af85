// Package uploader drives stored chunks to the remote end. A bounded set of
// upload slots pulls eligible chunks from the store in sequence order,
// obtains a presigned target per chunk, transmits the payload, and records
// the outcome. Failures retry with exponential backoff until the attempt
// budget is spent, after which the chunk waits for manual recovery.
package uploader
