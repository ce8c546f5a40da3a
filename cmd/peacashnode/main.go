// Command peacashnode runs a single peacash proof-of-stake node: it opens
// the store and wallet, joins the gossip network, drives the wall-clock
// slot tick, and serves the read-only HTTP API — all funneled through one
// engine-loop goroutine that is the sole owner of the blockchain value,
// per SPEC_FULL.md §5's single-owner concurrency model (grounded on the
// teacher's own single-handler-goroutine dispatch in core/network.go).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pea-chain/peacashd/internal/address"
	"github.com/pea-chain/peacashd/internal/api"
	"github.com/pea-chain/peacashd/internal/blockchain"
	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/heartbeat"
	"github.com/pea-chain/peacashd/internal/metrics"
	"github.com/pea-chain/peacashd/internal/p2p"
	"github.com/pea-chain/peacashd/internal/params"
	"github.com/pea-chain/peacashd/internal/pendingpool"
	"github.com/pea-chain/peacashd/internal/state"
	"github.com/pea-chain/peacashd/internal/store"
	"github.com/pea-chain/peacashd/internal/walletfile"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		multiaddr  string
		httpAddr   string
		tempDB     bool
		tempKey    bool
		dbPath     string
		walletPath string
		passphrase string
		debug      bool
		genesis    int64
	)

	cmd := &cobra.Command{
		Use:   "peacashnode",
		Short: "run a peacash proof-of-stake node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return run(cmd.Context(), nodeOptions{
				multiaddr:   multiaddr,
				httpAddr:    httpAddr,
				tempDB:      tempDB,
				tempKey:     tempKey,
				dbPath:      dbPath,
				walletPath:  walletPath,
				passphrase:  passphrase,
				genesisTime: genesis,
			})
		},
	}

	cmd.Flags().StringVar(&multiaddr, "multiaddr", "/ip4/0.0.0.0/tcp/0", "libp2p listen multiaddr")
	cmd.Flags().StringVar(&httpAddr, "http", "127.0.0.1:8080", "read-only HTTP API bind address")
	cmd.Flags().BoolVar(&tempDB, "tempdb", false, "use a throwaway temporary store instead of --db")
	cmd.Flags().BoolVar(&tempKey, "tempkey", false, "generate a throwaway key pair instead of --wallet")
	cmd.Flags().StringVar(&dbPath, "db", "data/peacash", "persistent store directory")
	cmd.Flags().StringVar(&walletPath, "wallet", "wallet.json", "passphrase-encrypted secret key file")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "wallet file passphrase")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().Int64Var(&genesis, "genesis-time", 0, "genesis time as a unix timestamp")

	return cmd
}

type nodeOptions struct {
	multiaddr   string
	httpAddr    string
	tempDB      bool
	tempKey     bool
	dbPath      string
	walletPath  string
	passphrase  string
	genesisTime int64
}

// gossipMessage is one inbound (topic, peer, payload) tuple dispatched onto
// the engine loop's gossipEvents channel.
type gossipMessage struct {
	topic string
	from  peer.ID
	data  []byte
}

// httpCommand is a read request marshaled from the HTTP goroutine onto the
// engine loop's httpCommands channel; reply is always sent exactly once.
type httpCommand struct {
	fn    func(*blockchain.Blockchain)
	reply chan struct{}
}

func run(ctx context.Context, opts nodeOptions) error {
	log := logrus.WithField("component", "peacashnode")

	kp, err := loadKeyPair(opts)
	if err != nil {
		log.Errorf("wallet: %v", err)
		return exitErr(1)
	}

	st, err := openStore(opts)
	if err != nil {
		log.Errorf("store: %v", err)
		return exitErr(1)
	}
	defer st.Close()

	bc, err := blockchain.New(st, kp)
	if err != nil {
		log.Errorf("blockchain: %v", err)
		return exitErr(1)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	node, err := p2p.New(ctx, opts.multiaddr)
	if err != nil {
		log.Errorf("p2p: %v", err)
		return exitErr(1)
	}
	defer node.Close()

	gossipEvents := make(chan gossipMessage, 256)
	tickEvents := make(chan uint64, 8)
	httpCommands := make(chan httpCommand, 64)

	for _, topic := range []string{params.TopicBlock, params.TopicBlocks, params.TopicTransaction, params.TopicStake} {
		topic := topic
		if err := node.Subscribe(ctx, topic, func(from peer.ID, data []byte) {
			select {
			case gossipEvents <- gossipMessage{topic: topic, from: from, data: data}:
			default:
				log.Warnf("gossipEvents full, dropping message on %s", topic)
			}
		}); err != nil {
			log.Errorf("subscribe %s: %v", topic, err)
			return exitErr(1)
		}
	}

	genesisTime := time.Unix(opts.genesisTime, 0)
	hb := heartbeat.New(genesisTime, func(slot uint64) error {
		select {
		case tickEvents <- slot:
		default:
			log.Warnf("tickEvents full, dropping slot %d", slot)
		}
		return nil
	})
	go hb.Run(ctx)

	reg := prometheus.NewRegistry()
	mx := metrics.New(reg)

	view := &blockchainView{
		httpCommands: httpCommands,
	}
	apiServer := api.New(view, reg)
	go func() {
		if err := apiServer.ListenAndServe(opts.httpAddr); err != nil && ctx.Err() == nil {
			log.Errorf("http api: %v", err)
		}
	}()

	engineLoop(ctx, bc, node, hb, mx, gossipEvents, tickEvents, httpCommands, log)
	return nil
}

// engineLoop is the single goroutine that owns bc; every mutation happens
// synchronously here between suspension points on the select below, per
// SPEC_FULL.md §5.
func engineLoop(
	ctx context.Context,
	bc *blockchain.Blockchain,
	node *p2p.Node,
	hb *heartbeat.Heartbeat,
	mx *metrics.Registry,
	gossipEvents <-chan gossipMessage,
	tickEvents <-chan uint64,
	httpCommands <-chan httpCommand,
	log *logrus.Entry,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-gossipEvents:
			handleGossip(ctx, bc, node, ev, log)

		case <-tickEvents:
			if err := bc.OnTick(); err != nil {
				exitOnStoreIO(err, log)
				log.Warnf("on_tick: %v", err)
			}
			broadcastSyncBlock(ctx, bc, node, log)
			updateMetrics(bc, node, hb, mx)

		case cmd := <-httpCommands:
			cmd.fn(bc)
			close(cmd.reply)
		}
	}
}

// updateMetrics refreshes every gauge from the engine loop, the only place
// that may read bc's fields without going through the httpCommands channel.
func updateMetrics(bc *blockchain.Blockchain, node *p2p.Node, hb *heartbeat.Heartbeat, mx *metrics.Registry) {
	mx.Height.Set(float64(bc.Height()))
	mx.SlotLagSeconds.Set(hb.Lag().Seconds())
	pending := bc.Pending()
	mx.PendingTransactions.Set(float64(len(pending.Transactions)))
	mx.PendingStakes.Set(float64(len(pending.Stakes)))
	mx.PendingBlocks.Set(float64(len(pending.Blocks)))
	mx.Peers.Set(float64(len(node.Peers())))
}

func handleGossip(ctx context.Context, bc *blockchain.Blockchain, node *p2p.Node, ev gossipMessage, log *logrus.Entry) {
	switch ev.topic {
	case params.TopicTransaction:
		tx, err := state.DecodeTransaction(ev.data)
		if err != nil {
			log.Debugf("malformed transaction from %s: %v", ev.from, err)
			return
		}
		if err := bc.AdmitTransaction(tx); err != nil {
			log.Debugf("rejected transaction from %s: %v", ev.from, err)
		}
	case params.TopicStake:
		st, err := state.DecodeStake(ev.data)
		if err != nil {
			log.Debugf("malformed stake from %s: %v", ev.from, err)
			return
		}
		if err := bc.AdmitStake(st); err != nil {
			log.Debugf("rejected stake from %s: %v", ev.from, err)
		}
	case params.TopicBlock, params.TopicBlocks:
		b, err := state.DecodeBlock(ev.data)
		if err != nil {
			log.Debugf("malformed block from %s: %v", ev.from, err)
			return
		}
		if _, err := bc.Append(b); err != nil {
			exitOnStoreIO(err, log)
			if err := bc.AdmitBlock(b); err != nil {
				log.Debugf("dropping block from %s: %v", ev.from, err)
			}
		}
	}
	_ = ctx
	_ = node
}

// broadcastSyncBlock re-publishes the next SYNC_BLOCKS_PER_TICK blocks of
// the main branch (fewer on a shorter branch) on the "blocks" topic each
// tick, the node's contribution to catching up lagging peers (spec §4.8's
// sync_block, driven once per slot rather than on demand since this module
// has no direct peer-request RPC).
func broadcastSyncBlock(ctx context.Context, bc *blockchain.Blockchain, node *p2p.Node, log *logrus.Entry) {
	n := params.SyncBlocksPerTick
	if h := int(bc.Height()); h < n {
		n = h
	}
	for i := 0; i < n; i++ {
		b, ok := bc.NextSyncBlock()
		if !ok {
			return
		}
		if err := node.Publish(ctx, params.TopicBlocks, b.Encode()); err != nil {
			log.Debugf("publish sync block: %v", err)
		}
	}
}

func loadKeyPair(opts nodeOptions) (*address.KeyPair, error) {
	if opts.tempKey {
		return address.Generate()
	}
	if _, err := os.Stat(opts.walletPath); os.IsNotExist(err) {
		kp, err := address.Generate()
		if err != nil {
			return nil, err
		}
		if err := walletfile.Save(opts.walletPath, kp.SecretKeyBytes(), opts.passphrase); err != nil {
			return nil, fmt.Errorf("save new wallet: %w", err)
		}
		return kp, nil
	}
	secret, err := walletfile.Load(opts.walletPath, opts.passphrase)
	if err != nil {
		return nil, err
	}
	return address.FromSecretBytes(secret), nil
}

func openStore(opts nodeOptions) (*store.Store, error) {
	dir := opts.dbPath
	if opts.tempDB {
		dir = os.TempDir() + "/peacash-" + uuid.NewString()
	}
	return store.Open(dir)
}

func exitErr(code int) error {
	return fmt.Errorf("exit %d", code)
}

// exitOnStoreIO aborts the process with exit code 2 when err is a StoreIO
// failure from append; any other error is left to the caller.
func exitOnStoreIO(err error, log *logrus.Entry) {
	if errs.Is(err, errs.StoreIO) {
		log.Errorf("store failure: %v", err)
		os.Exit(2)
	}
}

// blockchainView adapts *blockchain.Blockchain to api.BlockchainView by
// marshaling every read through the engine loop's httpCommands channel, so
// the HTTP goroutine never touches Blockchain directly (SPEC_FULL.md §5).
type blockchainView struct {
	httpCommands chan httpCommand
}

func (v *blockchainView) dispatch(fn func(*blockchain.Blockchain)) {
	reply := make(chan struct{})
	v.httpCommands <- httpCommand{fn: fn, reply: reply}
	<-reply
}

func (v *blockchainView) Height() uint32 {
	var out uint32
	v.dispatch(func(bc *blockchain.Blockchain) { out = bc.Height() })
	return out
}

func (v *blockchainView) HashAtHeight(height uint32) ([32]byte, bool) {
	var hash [32]byte
	var ok bool
	v.dispatch(func(bc *blockchain.Blockchain) { hash, ok = bc.HashAtHeight(height) })
	return hash, ok
}

func (v *blockchainView) GetBlock(hash [32]byte) (state.Block, error) {
	var b state.Block
	var err error
	v.dispatch(func(bc *blockchain.Blockchain) { b, err = bc.GetBlock(hash) })
	return b, err
}

func (v *blockchainView) CurrentState() *state.State {
	var s *state.State
	v.dispatch(func(bc *blockchain.Blockchain) { s = bc.CurrentState() })
	return s
}

func (v *blockchainView) Pending() *pendingpool.Pools {
	var p *pendingpool.Pools
	v.dispatch(func(bc *blockchain.Blockchain) { p = bc.Pending() })
	return p
}
