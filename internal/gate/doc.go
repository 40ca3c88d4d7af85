// Package gate validates captured audio segments before they enter durable
// storage. Rejection is a deliberate data-loss decision: dropping a
// provably-empty segment beats wasting storage and bandwidth on a unit that
// is guaranteed to fail downstream.
package gate
