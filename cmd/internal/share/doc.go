// Package share implements the DecisionLogr share gate.
//
// A decision owner shares one decision with an anonymous client through a share token
// carried in a link (/share/{token}). The Gate decides, on every request and from a
// freshly read token record, whether the token is usable, whether a passcode is still
// required, and whether a requested client action may proceed. Every attempt that can be
// attributed to a token is appended to the access log.
//
// The Gate holds no per-token state between calls. Persistence sits behind TokenStore and
// AccessLogStore; MemoryStore, PostgresStore and SQLiteStore implement both.
package share
