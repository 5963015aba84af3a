// Package token provides keyed hashing primitives for DecisionLogr.
//
// It is the single source of truth for how client identifiers (IP addresses) are
// pseudonymized before they reach the access log, and for constant-time comparison
// of service credentials.
//
// Design goals:
// - Default dev mode: SHA-256(value) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(value, key) when policy requires it.
// - Stable 64-char hex output.
//
// Environment:
// - DECISIONLOGR_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
