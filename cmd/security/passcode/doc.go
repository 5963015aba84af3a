// Package passcode hashes and verifies share-link passcodes.
//
// Passcodes are short secrets chosen by a decision owner and typed by an anonymous
// client. They are stored only as Argon2id hashes in a PHC-like encoded string:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification compares derived keys in constant time; plaintext is never compared.
package passcode
