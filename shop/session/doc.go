// Package session keeps per-user checkout state. Updates for one user are
// serialized; different users never contend with each other.
package session
