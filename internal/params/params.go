// Package params holds the wire-critical constants every peacashd node must
// agree on. A node that gossips under protocol ID ProtocolVersion is assumed
// by its peers to use exactly this table; there is no negotiation.
package params

import (
	"math/big"
	"time"
)

// Byte widths of the fixed-size wire types.
const (
	HashSize         = 32
	AddressSize      = 20
	PublicKeySize    = 33
	SecretKeySize    = 32
	SignatureSize    = 64
	BetaSize         = 32
	PiSize           = 96
	VRFPublicKeySize = 32
	AmountBytes      = 4
	ChecksumSize     = 4
)

// Slot timing. BlockTimeMax is the no-show deadline: a proposer silent past
// head.timestamp+BlockTimeMax forfeits its place in the staker queue.
const (
	BlockTimeMin = 1 * time.Second
	TimeDelta    = 1 * time.Second
	BlockTimeMax = BlockTimeMin + TimeDelta
)

// Entity and pool limits.
const (
	BlockTransactionsLimit   = 100
	BlockStakesLimit         = 1
	PendingTransactionsLimit = BlockTransactionsLimit
	PendingStakesLimit       = BlockStakesLimit
	PendingBlocksLimit       = 32
	SyncBlocksPerTick        = 16
)

// TrustForkAfterBlocks is the depth beyond which a fork is refused: the
// finality rule referenced throughout internal/states.
const TrustForkAfterBlocks = 100

// DecimalPlaces is the number of base-unit digits per coin; Coin is COIN in
// base units (1 coin = 10^18 base units).
const DecimalPlaces = 18

// Coin is 1 coin expressed in base units.
var Coin = new(big.Int).Exp(big.NewInt(10), big.NewInt(DecimalPlaces), nil)

// MinStake is the minimum staked balance required to stay in the staker
// rotation queue: one coin rounded down to the nearest value the 4-byte
// compressed amount form can hold (0x0de0b6b000000000 base units, just
// under 10^18), so a stake whose amount is MinStake stakes exactly MinStake.
var MinStake, _ = new(big.Int).SetString("0de0b6b000000000", 16)

// ProtocolVersion is asserted identical across peers at libp2p handshake;
// a peer identifying under a different string is never dialed.
const ProtocolVersion = "peacash/1.0.0"

// Address/secret-key text prefixes.
const (
	PrefixAddress   = "0x"
	PrefixSecretKey = "SECRETx"
)

// RecoveryID is pinned; signatures requiring any other recovery id are
// rejected rather than silently accepted.
const RecoveryID = 0

// Gossip topics.
const (
	TopicBlock       = "block"
	TopicBlocks      = "blocks"
	TopicTransaction = "transaction"
	TopicStake       = "stake"
	TopicMultiaddr   = "multiaddr"
)

// RateLimitPerTopic and RateLimitWindow bound gossip admission per peer per
// topic (~100 msgs/hour).
const (
	RateLimitPerTopic = 100
	RateLimitWindow   = time.Hour
)

// GenesisBeta is the VRF alpha fed to the first block's election; all-zero.
var GenesisBeta = [BetaSize]byte{}

// GenesisHash is the previous_hash value that marks a block as the chain's
// first block.
var GenesisHash = [HashSize]byte{}
