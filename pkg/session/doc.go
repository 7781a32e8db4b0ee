/*
Package session serializes and persists authentication flow states between requests.

A login spans several HTTP round-trips. Between them the flow state lives in a
ports.StateStore; the Manager guarantees that requests for the same session are
applied one at a time, locally with ref-counted mutexes and across replicas with an
optional ports.DistributedLocker. AuthIDCodec turns session ids into signed, expiring
tokens handed to clients, so a session id can't be guessed or forged.
*/
package session
