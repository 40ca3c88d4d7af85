// Package netwatch detects whether the upload endpoint is reachable and
// pauses or resumes the scheduler accordingly.
package netwatch
