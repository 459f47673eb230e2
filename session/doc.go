// Package session holds volatile run state between executions, most notably
// the pause snapshots of suspended runs awaiting external input.
package session
