// Package security summarizes the security posture of a built server so it
// can be logged at startup and checked in tests.
//
// # What this package must NOT do
//
//   - Change configuration. It only reports.
package security
