// Package transport moves chunk payload bytes to presigned delivery targets.
package transport
