package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/indexer"
	"github.com/tolelom/duelchain/internal/testutil"
	"github.com/tolelom/duelchain/rpc"
	"github.com/tolelom/duelchain/storage"
	"github.com/tolelom/duelchain/wallet"

	// Register the transfer handler so sendTx recognises the type.
	_ "github.com/tolelom/duelchain/vm/modules/economy"
)

const chainID = "duelchain-test"

type handlerEnv struct {
	t       *testing.T
	state   *storage.StateDB
	chain   *core.Blockchain
	mempool *core.Mempool
	handler *rpc.Handler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	db := testutil.NewMemDB()
	state := storage.NewStateDB(db)
	chain := core.NewBlockchain(testutil.NewMemBlockStore())
	mempool := core.NewMempool(chainID)
	idx := indexer.New(db, events.NewEmitter())
	return &handlerEnv{
		t:       t,
		state:   state,
		chain:   chain,
		mempool: mempool,
		handler: rpc.NewHandler(chain, state, mempool, idx),
	}
}

func (e *handlerEnv) call(method string, params any) rpc.Response {
	e.t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		e.t.Fatal(err)
	}
	return e.handler.Dispatch(rpc.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  raw,
	})
}

func TestDispatchRejectsBadVersion(t *testing.T) {
	e := newHandlerEnv(t)
	resp := e.handler.Dispatch(rpc.Request{JSONRPC: "1.0", Method: "getBlockHeight"})
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidRequest {
		t.Errorf("got %+v, want invalid request error", resp.Error)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	e := newHandlerEnv(t)
	resp := e.call("noSuchMethod", nil)
	if resp.Error == nil || resp.Error.Code != rpc.CodeMethodNotFound {
		t.Errorf("got %+v, want method not found", resp.Error)
	}
}

func TestGetBlockHeight(t *testing.T) {
	e := newHandlerEnv(t)
	resp := e.call("getBlockHeight", nil)
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	if h, ok := resp.Result.(int64); !ok || h != 0 {
		t.Errorf("height: got %v want 0", resp.Result)
	}
}

func TestGetBalance(t *testing.T) {
	e := newHandlerEnv(t)
	w, _ := wallet.Generate()
	if err := e.state.SetAccount(&core.Account{Address: w.PubKey(), Balance: uint256.NewInt(500)}); err != nil {
		t.Fatal(err)
	}

	resp := e.call("getBalance", map[string]string{"address": w.PubKey()})
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type: %T", resp.Result)
	}
	if bal, ok := result["balance"].(*uint256.Int); !ok || bal.Uint64() != 500 {
		t.Errorf("balance: got %v want 500", result["balance"])
	}
}

func TestGetWagerBeforeInit(t *testing.T) {
	e := newHandlerEnv(t)
	resp := e.call("getWager", nil)
	if resp.Error == nil {
		t.Fatal("uninitialized game returned a result")
	}
	if resp.Error.Code != rpc.CodeNotFound {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeNotFound)
	}
}

func TestExportWagerRequiresLock(t *testing.T) {
	e := newHandlerEnv(t)
	w := &core.Wager{
		Owner:        "aa",
		Bet:          uint256.NewInt(100),
		Deposit:      uint256.NewInt(10),
		RevealWindow: 5,
	}
	if err := e.state.SetWager(w); err != nil {
		t.Fatal(err)
	}

	resp := e.call("exportWager", nil)
	if resp.Error == nil {
		t.Fatal("export of an unlocked game succeeded")
	}
	if resp.Error.Code != rpc.CodeNotLocked {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeNotLocked)
	}

	w.Locked = true
	if err := e.state.SetWager(w); err != nil {
		t.Fatal(err)
	}
	if err := e.state.SetEscrow("bb", uint256.NewInt(110)); err != nil {
		t.Fatal(err)
	}

	resp = e.call("exportWager", nil)
	if resp.Error != nil {
		t.Fatalf("export of a locked game failed: %+v", resp.Error)
	}
	snap, ok := resp.Result.(core.WagerSnapshot)
	if !ok {
		t.Fatalf("result type: %T", resp.Result)
	}
	if !snap.Wager.Locked {
		t.Error("exported wager not marked locked")
	}
	if snap.Escrow["bb"] == nil || snap.Escrow["bb"].Uint64() != 110 {
		t.Errorf("exported escrow: %v", snap.Escrow)
	}
}

func TestSendTx(t *testing.T) {
	e := newHandlerEnv(t)
	w, _ := wallet.Generate()

	good, err := w.Transfer(chainID, w.PubKey(), uint256.NewInt(1), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	resp := e.call("sendTx", good)
	if resp.Error != nil {
		t.Fatalf("sendTx: %+v", resp.Error)
	}
	if e.mempool.Size() != 1 {
		t.Errorf("mempool size: got %d want 1", e.mempool.Size())
	}

	// A transaction signed for another chain is refused at the door.
	bad, err := w.Transfer("other-chain", w.PubKey(), uint256.NewInt(1), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	resp = e.call("sendTx", bad)
	if resp.Error == nil {
		t.Error("foreign-chain transaction accepted")
	}
}

func TestGetRoundNotFound(t *testing.T) {
	e := newHandlerEnv(t)
	resp := e.call("getRound", map[string]uint64{"round": 3})
	if resp.Error == nil {
		t.Fatal("missing round returned a result")
	}
	if resp.Error.Code != rpc.CodeNotFound {
		t.Errorf("error code: got %d want %d", resp.Error.Code, rpc.CodeNotFound)
	}
}

func TestGetRoundsByPlayerEmpty(t *testing.T) {
	e := newHandlerEnv(t)
	resp := e.call("getRoundsByPlayer", map[string]string{"address": "aa"})
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	if rounds, ok := resp.Result.([]uint64); ok && len(rounds) != 0 {
		t.Errorf("rounds: got %v want empty", rounds)
	}
}
