// Package daemon wires the spool ingester, upload scheduler, and network
// watcher into a single long-running process guarded by an instance lock.
package daemon
