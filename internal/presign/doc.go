// Package presign obtains short-lived upload targets from the remote presign
// service. Each target covers exactly one chunk.
package presign
