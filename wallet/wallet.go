package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/vm/modules/rps"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx creates a signed transaction. chainID must match the target network;
// nonce should match the account's current nonce. value may be nil for
// non-payable operations.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, value *uint256.Int, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, value, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, nil, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// ---- Wager game builders ----

// InitGame creates the one-shot game setup transaction. The sender becomes
// the game owner.
func (w *Wallet) InitGame(chainID string, bet, deposit *uint256.Int, revealWindow int64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerInit, nonce, fee, nil, core.WagerInitPayload{
		Bet:          bet,
		Deposit:      deposit,
		RevealWindow: revealWindow,
	})
}

// Commit builds a payable commit transaction. value must cover bet+deposit;
// any excess is refunded by the handler.
func (w *Wallet) Commit(chainID, commitment string, value *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerCommit, nonce, fee, value, core.WagerCommitPayload{
		Commitment: commitment,
	})
}

// Reveal opens a previously committed choice.
func (w *Wallet) Reveal(chainID string, choice core.Choice, blinding []byte, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerReveal, nonce, fee, nil, core.WagerRevealPayload{
		Choice:         uint8(choice),
		BlindingFactor: hex.EncodeToString(blinding),
	})
}

// Forfeit claims a win against an opponent who missed the reveal deadline.
func (w *Wallet) Forfeit(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerForfeit, nonce, fee, nil, struct{}{})
}

// Distribute settles the finished round and pays out both players.
func (w *Wallet) Distribute(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerDistribute, nonce, fee, nil, struct{}{})
}

// Lock freezes the game (owner only).
func (w *Wallet) Lock(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerLock, nonce, fee, nil, struct{}{})
}

// Unlock resumes a frozen game (owner only).
func (w *Wallet) Unlock(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerUnlock, nonce, fee, nil, struct{}{})
}

// ImportState replaces the game state with a snapshot (owner only, game must
// be locked).
func (w *Wallet) ImportState(chainID string, snapshot core.WagerSnapshot, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWagerImport, nonce, fee, nil, core.WagerImportPayload{
		Snapshot: snapshot,
	})
}

// Commitment computes the commitment hash for this wallet's identity, plus a
// fresh 32-byte blinding factor to keep until reveal time.
func (w *Wallet) Commitment(choice core.Choice) (commitment string, blinding []byte, err error) {
	blinding = make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, blinding); err != nil {
		return "", nil, err
	}
	return rps.Commitment(choice, blinding, w.PubKey()), blinding, nil
}
