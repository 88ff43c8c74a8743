package rps

import (
	"encoding/hex"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
)

// Commitment computes the one-way hash binding a hidden choice, a secret
// blinding factor and the committer's identity:
//
//	SHA-256(choice byte ‖ blinding ‖ committer pubkey hex)
//
// Including the committer means a revealed (choice, blinding) pair cannot be
// replayed by a third party who observes the reveal transaction.
func Commitment(choice core.Choice, blinding []byte, committer string) string {
	return crypto.HashConcat([]byte{byte(choice)}, blinding, []byte(committer))
}

// VerifyCommitment reports whether the revealed values reproduce commitment.
// Pure and deterministic; a mismatch is a rejection, never an error.
func VerifyCommitment(commitment string, choice core.Choice, blinding []byte, committer string) bool {
	return Commitment(choice, blinding, committer) == commitment
}

// commitmentWellFormed checks the stored form: 64 lowercase-insensitive hex
// characters (a SHA-256 digest).
func commitmentWellFormed(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
