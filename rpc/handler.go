package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/indexer"
	"github.com/tolelom/duelchain/vm"
)

// Handler dispatches JSON-RPC methods against chain, state, and mempool.
type Handler struct {
	chain   *core.Blockchain
	state   core.State
	mempool *core.Mempool
	index   *indexer.Indexer
}

// NewHandler wires a handler to its backing components.
func NewHandler(chain *core.Blockchain, state core.State, mempool *core.Mempool, index *indexer.Indexer) *Handler {
	return &Handler{chain: chain, state: state, mempool: mempool, index: index}
}

// Dispatch routes a request to the matching method implementation.
func (h *Handler) Dispatch(req Request) Response {
	if req.JSONRPC != "2.0" {
		return errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be 2.0")
	}

	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.chain.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getWager":
		return h.getWager(req)

	case "getEscrow":
		return h.getEscrow(req)

	case "getRound":
		return h.getRound(req)

	case "getRoundsByPlayer":
		return h.getRoundsByPlayer(req)

	case "exportWager":
		return h.exportWager(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "expected {hash} or {height}")
	}

	var (
		block *core.Block
		err   error
	)
	switch {
	case params.Hash != "":
		block, err = h.chain.GetBlock(params.Hash)
	case params.Height != nil:
		block, err = h.chain.GetBlockByHeight(*params.Height)
	default:
		return errResponse(req.ID, CodeInvalidParams, "hash or height required")
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errResponse(req.ID, CodeNotFound, "block not found")
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "expected {address}")
	}
	account, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"address": account.Address,
		"balance": account.Balance,
		"nonce":   account.Nonce,
	})
}

func (h *Handler) getWager(req Request) Response {
	wager, err := h.state.GetWager()
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errResponse(req.ID, CodeNotFound, "game not initialized")
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, wager)
}

func (h *Handler) getEscrow(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "expected {address}")
	}
	amount, err := h.state.GetEscrow(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"address": params.Address,
		"amount":  amount,
	})
}

func (h *Handler) getRound(req Request) Response {
	var params struct {
		Round uint64 `json:"round"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "expected {round}")
	}
	record, err := h.state.GetRound(params.Round)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errResponse(req.ID, CodeNotFound, "round not found")
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, record)
}

func (h *Handler) getRoundsByPlayer(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "expected {address}")
	}
	rounds, err := h.index.GetRoundsByPlayer(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, rounds)
}

// exportWager returns the full wager snapshot for migration to another
// deployment. The game must be locked first so the exported state cannot
// change underneath the caller.
func (h *Handler) exportWager(req Request) Response {
	wager, err := h.state.GetWager()
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errResponse(req.ID, CodeNotFound, "game not initialized")
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if !wager.Locked {
		return errResponse(req.ID, CodeNotLocked, "game must be locked before export")
	}
	escrow, err := h.state.EscrowEntries()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, core.WagerSnapshot{Wager: wager, Escrow: escrow})
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "expected a signed transaction")
	}
	if !vm.Supported(tx.Type) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unsupported transaction type %q", tx.Type))
	}
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, map[string]string{"txId": tx.ID})
}
