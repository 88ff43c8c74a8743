package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer TxType = "transfer"

	// Wager game operations.
	TxWagerInit       TxType = "rps_init"
	TxWagerLock       TxType = "rps_lock"
	TxWagerUnlock     TxType = "rps_unlock"
	TxWagerImport     TxType = "rps_import"
	TxWagerCommit     TxType = "rps_commit" // payable
	TxWagerReveal     TxType = "rps_reveal"
	TxWagerForfeit    TxType = "rps_forfeit"
	TxWagerDistribute TxType = "rps_distribute"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Value is the amount of native tokens attached to the call; it is debited
// from the sender into module custody before the handler runs.
// Signature covers all fields except Signature itself.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Value     *uint256.Int    `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// AttachedValue returns the transferred value, normalising a nil field to zero.
func (tx *Transaction) AttachedValue() *uint256.Int {
	if tx.Value == nil {
		return uint256.NewInt(0)
	}
	return tx.Value
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Value     *uint256.Int    `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Value:     tx.Value,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
// value may be nil for non-payable operations.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, value *uint256.Int, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Value:     value,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string       `json:"to"`
	Amount *uint256.Int `json:"amount"`
}

// WagerInitPayload creates the game instance. One-shot: a second init fails.
type WagerInitPayload struct {
	Bet          *uint256.Int `json:"bet"`
	Deposit      *uint256.Int `json:"deposit"`
	RevealWindow int64        `json:"reveal_window"`
}

// WagerCommitPayload submits a hidden commitment to a choice.
// The transaction must carry at least bet+deposit as attached value.
type WagerCommitPayload struct {
	Commitment string `json:"commitment"` // hex SHA-256
}

// WagerRevealPayload opens a previously submitted commitment.
type WagerRevealPayload struct {
	Choice         uint8  `json:"choice"`          // 1=rock 2=paper 3=scissors
	BlindingFactor string `json:"blinding_factor"` // hex-encoded 32-byte secret
}

// WagerImportPayload replaces the whole game state with a snapshot.
// Only the owner may import, and only while the game is locked.
type WagerImportPayload struct {
	Snapshot WagerSnapshot `json:"snapshot"`
}
