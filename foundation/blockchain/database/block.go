package database

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/tessercoin/tesser/foundation/blockchain/genesis"
	"github.com/tessercoin/tesser/foundation/blockchain/merkle"
	"github.com/tessercoin/tesser/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64 `json:"number"`          // Block number in the chain.
	PrevBlockHash string `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     uint64 `json:"timestamp"`       // Time the block was mined.
	Nonce         uint64 `json:"nonce"`           // Value identified to solve the hash solution.
	Difficulty    uint16 `json:"difficulty"`      // Number of leading 0 hex digits needed to solve the hash solution.
	TransRoot     string `json:"trans_root"`      // Merkle tree root hash for the transactions in this block.
}

// Block represents a group of transactions bundled together, coinbase first.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[Tx]
}

// GenesisBlock constructs block 0 from the genesis values. Every field is
// fixed so the block and its hash are network wide constants.
func GenesisBlock(gen genesis.Genesis) (Block, error) {
	coinbase := NewCoinbaseTx(gen.BeneficiaryID, gen.MiningReward)

	tree, err := merkle.NewTree([]Tx{coinbase})
	if err != nil {
		return Block{}, err
	}

	gb := Block{
		Header: BlockHeader{
			Number:        0,
			PrevBlockHash: signature.ZeroHash,
			TimeStamp:     gen.Date,
			Nonce:         0,
			Difficulty:    gen.Difficulty,
			TransRoot:     tree.RootHex(),
		},
		Trans: tree,
	}

	return gb, nil
}

// POWArgs represents the set of arguments required to mine a new block.
type POWArgs struct {
	Difficulty uint16
	PrevBlock  Block
	Trans      []Tx
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {

	// Construct a merkle tree from the transactions for this block. The root
	// of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(args.Trans)
	if err != nil {
		return Block{}, err
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Number:        args.PrevBlock.Header.Number + 1,
			PrevBlockHash: args.PrevBlock.Hash(),
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			Nonce:         0, // Will be identified by the POW algorithm.
			Difficulty:    args.Difficulty,
			TransRoot:     tree.RootHex(),
		},
		Trans: tree,
	}

	// A block's timestamp must come after its parent's.
	if nb.Header.TimeStamp <= args.PrevBlock.Header.TimeStamp {
		nb.Header.TimeStamp = args.PrevBlock.Header.TimeStamp + 1
	}

	// Perform the proof of work mining operation.
	if err := nb.performPOW(ctx, args.EvHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started")
	defer ev("database: PerformPOW: MINING: completed")

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	// Loop until we or another node finds a solution for the next block. The
	// context is checked on every attempt so an abort is observed within the
	// latency of a single hash.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block. Only the header is hashed so
// the chain can be cryptographically checked from block headers alone. The
// genesis header is fixed network wide, so its hash is a constant too.
func (b Block) Hash() string {
	return signature.Hash(b.Header)
}

// ValidateBlock takes a block and validates the structural consensus rules
// for including it after the specified previous block. Checks against the
// unspent set are performed by the Database while applying.
func (b Block) ValidateBlock(previousBlock Block, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty matches the chain difficulty", b.Header.Number)

	if b.Header.Difficulty != previousBlock.Header.Difficulty {
		return NewValidationError("block difficulty does not match the chain, got %d, exp %d", b.Header.Difficulty, previousBlock.Header.Difficulty)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	hash := b.Hash()
	if !isHashSolved(b.Header.Difficulty, hash) {
		return NewValidationError("%s invalid block hash", hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	if b.Header.Number != previousBlock.Header.Number+1 {
		return NewValidationError("this block is not the next number, got %d, exp %d", b.Header.Number, previousBlock.Header.Number+1)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return NewValidationError("parent block hash doesn't match our known parent, got %s, exp %s", b.Header.PrevBlockHash, previousBlock.Hash())
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Header.Number)

	if b.Header.TimeStamp <= previousBlock.Header.TimeStamp {
		return NewValidationError("block timestamp is not after parent block, parent %d, block %d", previousBlock.Header.TimeStamp, b.Header.TimeStamp)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	if b.Header.TransRoot != b.Trans.RootHex() {
		return NewValidationError("merkle root does not match transactions, got %s, exp %s", b.Trans.RootHex(), b.Header.TransRoot)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: coinbase is first and alone of its kind", b.Header.Number)

	trans := b.Trans.Values()
	if len(trans) == 0 {
		return NewValidationError("block has no transactions")
	}
	if !trans[0].IsCoinbase() {
		return NewValidationError("first transaction is not a coinbase")
	}
	for i, tx := range trans {
		if i > 0 && tx.IsCoinbase() {
			return NewValidationError("coinbase transaction not in first position, position %d", i)
		}
		if err := tx.ValidateStructure(); err != nil {
			return err
		}
	}

	return nil
}

// Work returns the amount of work the block's declared difficulty
// represents: one expected hash attempt per possible solution.
func (b Block) Work() *big.Int {
	work := big.NewInt(1)
	return work.Lsh(work, uint(4*b.Header.Difficulty))
}

// ChainWork computes the cumulative proof of work across the specified
// sequence of blocks. This is the chain selection metric: more accumulated
// work wins, ties retain the currently held chain.
func ChainWork(blocks []Block) *big.Int {
	total := big.NewInt(0)
	for _, block := range blocks {
		total.Add(total, block.Work())
	}

	return total
}

// isHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading 0's.
func isHashSolved(difficulty uint16, hash string) bool {
	const match = "00000000000000000"

	hash = strings.TrimPrefix(hash, "0x")
	if len(hash) != 64 || int(difficulty) > len(match) {
		return false
	}

	return hash[:difficulty] == match[:difficulty]
}

// =============================================================================

// BlockData represents what is serialized to storage and over the wire.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []Tx        `json:"trans"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans.Values(),
	}
}

// ToBlock converts a BlockData back into a Block, rebuilding the merkle tree
// for the set of transactions.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: blockData.Header,
		Trans:  tree,
	}

	return nb, nil
}
