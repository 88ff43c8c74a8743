// Command node starts a duelchain node: a single-validator chain hosting the
// commit-reveal wager game.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tolelom/duelchain/config"
	"github.com/tolelom/duelchain/consensus"
	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/indexer"
	"github.com/tolelom/duelchain/rpc"
	"github.com/tolelom/duelchain/storage"
	"github.com/tolelom/duelchain/vm"
	"github.com/tolelom/duelchain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/duelchain/vm/modules/economy"
	_ "github.com/tolelom/duelchain/vm/modules/rps"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("DUEL_PASSWORD")
	if password == "" {
		log.Println("WARNING: DUEL_PASSWORD not set, keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- load validator key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	blockStore := storage.NewLevelBlockStore(db)
	state := storage.NewStateDB(db) // same DB, different key prefixes

	// ---- initialise blockchain ----
	bc := core.NewBlockchain(blockStore)
	if err := bc.Init(); err != nil {
		log.Fatalf("blockchain init: %v", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			log.Fatalf("genesis: %v", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			log.Fatalf("add genesis: %v", err)
		}
		log.Printf("Genesis block committed: %s", genesisBlock.Hash)
	}

	// ---- events / indexer / mempool / executor ----
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(cfg.Genesis.ChainID, state, emitter)

	// ---- consensus ----
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey)

	// ---- RPC ----
	rpcHandler := rpc.NewHandler(bc, state, mempool, idx)
	rpcServer := rpc.NewServer(rpcHandler, cfg.RPCPort, cfg.RPCAuthToken)
	go func() {
		if err := rpcServer.Start(); err != nil {
			log.Fatalf("rpc: %v", err)
		}
	}()
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// ---- consensus loop ----
	interval := time.Duration(cfg.BlockInterval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(interval, done)
	}()
	log.Printf("Consensus running (validator: %s)", privKey.Public().Hex())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// Stop consensus first so no new blocks are written, then the RPC server,
	// then the deferred db.Close runs last.
	close(done)
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("rpc shutdown: %v", err)
	}
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
