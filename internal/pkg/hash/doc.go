// Package hash provides helpers for hashing and verifying short secrets.
//
// The vault never stores one-time passcodes or reveal tokens in plaintext:
// store only the hash, then match submitted values by recomputing it. The
// HMAC construction keeps hashes deterministic so they can double as lookup
// keys while an attacker without the key cannot precompute them.
package hash
