// Package redis provides Redis-backed session persistence and distributed locking,
// so suspended logins can be resumed by any replica.
package redis
