// Package client is the Go client for the beacon HTTP API. The agent
// binary uses it to sign and deliver heartbeats; ops tooling uses the
// read methods to inspect derived state.
package client
