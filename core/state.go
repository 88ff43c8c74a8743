package core

import "github.com/holiman/uint256"

// Account holds a participant's native token balance and replay-protection
// nonce. Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string       `json:"address"` // pubkey hex
	Balance *uint256.Int `json:"balance"`
	Nonce   uint64       `json:"nonce"`
}

// NewAccount returns a zero-balance account for address.
func NewAccount(address string) *Account {
	return &Account{Address: address, Balance: uint256.NewInt(0)}
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Wager game (singleton per deployment)
	GetWager() (*Wager, error)
	SetWager(w *Wager) error

	// Escrow ledger: funds held in custody per identity.
	// Entries are zeroed on payout, never removed.
	GetEscrow(address string) (*uint256.Int, error)
	SetEscrow(address string, amount *uint256.Int) error
	// EscrowEntries returns every non-zero escrow entry, merged across the
	// persisted state and the current write buffer.
	EscrowEntries() (map[string]*uint256.Int, error)

	// Completed round history
	GetRound(round uint64) (*RoundRecord, error)
	SetRound(r *RoundRecord) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
