package vm

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/events"
)

// Context is passed to every Handler. It supplies the chain state, the
// current block, the triggering transaction and the event emitter, plus the
// host capabilities handlers need: caller identity, attached value, block
// height and the value-transfer primitive.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	Emitter *events.Emitter
}

// Caller returns the identity that signed the triggering transaction.
func (ctx *Context) Caller() string {
	return ctx.Tx.From
}

// Value returns the funds attached to the triggering transaction. The
// executor has already debited this amount from the caller; it is held in
// module custody until the handler refunds, escrows or pays it out.
func (ctx *Context) Value() *uint256.Int {
	return ctx.Tx.AttachedValue()
}

// Height returns the current block height.
func (ctx *Context) Height() int64 {
	return ctx.Block.Header.Height
}

// Transfer moves amount out of module custody to the given identity's
// account. It fails when the recipient is not a well-formed public key or
// the credit would overflow; state is left untouched on failure.
func (ctx *Context) Transfer(to string, amount *uint256.Int) error {
	if _, err := crypto.PubKeyFromHex(to); err != nil {
		return fmt.Errorf("transfer recipient: %w", err)
	}
	acc, err := ctx.State.GetAccount(to)
	if err != nil {
		return fmt.Errorf("transfer recipient account: %w", err)
	}
	sum, overflow := new(uint256.Int).AddOverflow(acc.Balance, amount)
	if overflow {
		return fmt.Errorf("transfer to %s overflows balance", to)
	}
	acc.Balance = sum
	return ctx.State.SetAccount(acc)
}

// Executor applies transactions to the state using the global Handler registry.
// It only accepts transactions signed for its own chain ID, so the check holds
// even for blocks that arrived without passing through the local mempool.
type Executor struct {
	chainID string
	state   core.State
	emitter *events.Emitter
}

// NewExecutor creates an Executor for the given chain ID, state and event emitter.
func NewExecutor(chainID string, state core.State, emitter *events.Emitter) *Executor {
	return &Executor{chainID: chainID, state: state, emitter: emitter}
}

// ExecuteBlock applies all transactions in block sequentially.
// A failing transaction causes the whole block to be rejected.
// EventBlockCommit is emitted by the caller (consensus) after signing so
// the event carries the correct block hash.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	for _, tx := range block.Transactions {
		if err := e.ExecuteTx(block, tx); err != nil {
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	return nil
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// Either every effect of the transaction is applied or none is: the write
// buffer is reverted on any handler error.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if tx.ChainID != e.chainID {
		return fmt.Errorf("wrong chain id: got %q want %q", tx.ChainID, e.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := e.applyTx(block, tx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	if e.emitter != nil {
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return nil
}

// applyTx charges the fee and attached value, increments the nonce, then
// dispatches to the handler. The attached value moves into module custody;
// handlers return it via Context.Transfer (refunds, payouts).
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}

	cost, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(tx.Fee), tx.AttachedValue())
	if overflow {
		return fmt.Errorf("fee+value overflows for account %s", tx.From)
	}
	if acc.Balance.Lt(cost) {
		return fmt.Errorf("insufficient balance: have %s need %s (fee %d + value %s)",
			acc.Balance, cost, tx.Fee, tx.AttachedValue())
	}
	acc.Balance = new(uint256.Int).Sub(acc.Balance, cost)
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}

	ctx := &Context{
		State:   e.state,
		Block:   block,
		Tx:      tx,
		Emitter: e.emitter,
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
