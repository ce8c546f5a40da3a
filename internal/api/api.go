// Package api implements the read-only HTTP surface of spec §6: height,
// hash-by-height, block-by-hash, balance, staked balance, staker queue,
// and pending-pool introspection. Grounded on the teacher's own
// encoding/json-over-net/http handler shape in cmd/dexserver/main.go,
// upgraded to github.com/go-chi/chi/v5 (a direct teacher dependency) for
// the path-parameter routing spec §6's `{h}`/`{hash}`/`{addr}`/`{kind}`
// endpoints need. Handlers only ever call accessor methods on
// BlockchainView — never anything that mutates chain state — matching
// spec §5's single-owner rule (see SPEC_FULL.md §5's engine-loop design).
package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logrus "github.com/sirupsen/logrus"

	"github.com/pea-chain/peacashd/internal/address"
	"github.com/pea-chain/peacashd/internal/pendingpool"
	"github.com/pea-chain/peacashd/internal/state"
)

type Hash = [32]byte
type AddressBytes = state.AddressBytes

// BlockchainView is the read-only slice of *blockchain.Blockchain this
// package depends on, kept as an interface so internal/api never imports
// internal/blockchain directly (and so handler tests can supply a fake).
type BlockchainView interface {
	Height() uint32
	HashAtHeight(height uint32) (Hash, bool)
	GetBlock(hash Hash) (state.Block, error)
	CurrentState() *state.State
	Pending() *pendingpool.Pools
}

// Server wraps a chi.Router over a BlockchainView.
type Server struct {
	router http.Handler
	chain  BlockchainView
	log    *logrus.Entry
}

// New builds the router; call ListenAndServe or use Server as an
// http.Handler directly (tests do the latter via httptest). reg may be nil,
// in which case no /metrics route is mounted.
func New(chain BlockchainView, reg *prometheus.Registry) *Server {
	s := &Server{chain: chain, log: logrus.WithField("component", "api")}
	r := chi.NewRouter()
	r.Get("/height", s.handleHeight)
	r.Get("/hash/{h}", s.handleHashAtHeight)
	r.Get("/block/{hash}", s.handleBlock)
	r.Get("/balance/{addr}", s.handleBalance)
	r.Get("/staked/{addr}", s.handleStaked)
	r.Get("/stakers", s.handleStakers)
	r.Get("/pending/{kind}", s.handlePending)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// ListenAndServe blocks serving addr; the HTTP goroutine of spec §5's
// engine-loop design, never touching Blockchain except through this
// read-only view.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Infof("http api listening on %s", addr)
	return http.ListenAndServe(addr, s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint32{"height": s.chain.Height()})
}

func (s *Server) handleHashAtHeight(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "h")
	height, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed height")
		return
	}
	hash, ok := s.chain.HashAtHeight(uint32(height))
	if !ok {
		writeError(w, http.StatusNotFound, "no block at that height")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hashHex(hash)})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHashParam(r, "hash")
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed hash")
		return
	}
	b, err := s.chain.GetBlock(hash)
	if err != nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddrParam(r, "addr")
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": s.chain.CurrentState().Balance(addr).String()})
}

func (s *Server) handleStaked(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddrParam(r, "addr")
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"staked": s.chain.CurrentState().StakedBalance(addr).String()})
}

func (s *Server) handleStakers(w http.ResponseWriter, r *http.Request) {
	stakers := s.chain.CurrentState().Stakers
	out := make([]string, len(stakers))
	for i, a := range stakers {
		out[i] = address.EncodeAddress(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "kind") {
	case "transactions":
		writeJSON(w, http.StatusOK, s.chain.Pending().Transactions)
	case "stakes":
		writeJSON(w, http.StatusOK, s.chain.Pending().Stakes)
	case "blocks":
		writeJSON(w, http.StatusOK, s.chain.Pending().Blocks)
	default:
		writeError(w, http.StatusBadRequest, "unknown pending kind")
	}
}

func parseHashParam(r *http.Request, name string) (Hash, bool) {
	raw := chi.URLParam(r, name)
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 32 {
		return Hash{}, false
	}
	var h Hash
	copy(h[:], b)
	return h, true
}

func parseAddrParam(r *http.Request, name string) (AddressBytes, bool) {
	raw := chi.URLParam(r, name)
	addr, err := address.DecodeAddress(raw)
	if err != nil {
		return AddressBytes{}, false
	}
	return addr, true
}

func hashHex(h Hash) string {
	return hex.EncodeToString(h[:])
}
