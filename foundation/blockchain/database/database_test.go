package database_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/genesis"
	"github.com/tessercoin/tesser/foundation/blockchain/merkle"
	"github.com/tessercoin/tesser/foundation/blockchain/signature"
	"github.com/tessercoin/tesser/foundation/blockchain/storage/memory"
)

// nopEv satisfies the event handler parameter for tests that don't care
// about the event stream.
func nopEv(v string, args ...any) {}

// testGenesis returns genesis values with a difficulty low enough to mine
// blocks inside a test.
func testGenesis(beneficiaryID string) genesis.Genesis {
	return genesis.Genesis{
		ChainID:       1,
		Date:          1748793600,
		Difficulty:    1,
		MiningReward:  100,
		BeneficiaryID: beneficiaryID,
		TransPerBlock: 10,
	}
}

// mineBlock solves the work problem for the specified transactions on top of
// the current tip. The coinbase must already be in first position.
func mineBlock(t *testing.T, gen genesis.Genesis, prevBlock database.Block, trans []database.Tx) database.Block {
	t.Helper()

	block, err := database.POW(context.Background(), database.POWArgs{
		Difficulty: gen.Difficulty,
		PrevBlock:  prevBlock,
		Trans:      trans,
		EvHandler:  nopEv,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
	}

	return block
}

// spendGenesis builds a signed transaction spending the genesis coinbase.
func spendGenesis(t *testing.T, db *database.Database, key *ecdsa.PrivateKey, to string, value uint64, fee uint64) database.Tx {
	t.Helper()

	owner := signature.AddressFromPublicKey(&key.PublicKey)

	unspent := db.UnspentByAddress(owner)
	if len(unspent) == 0 {
		t.Fatalf("\t%s\tShould have unspent outputs for the owner.", failed)
	}

	total := unspent[0].Output.Value
	outputs := []database.TxOutput{{Value: value, PubKeyHash: to}}
	if change := total - value - fee; change > 0 {
		outputs = append(outputs, database.TxOutput{Value: change, PubKeyHash: owner})
	}

	tx := database.NewTx(
		[]database.TxInput{{TxID: unspent[0].OutPoint.TxID, OutputIndex: unspent[0].OutPoint.OutputIndex}},
		outputs,
	)

	signedTx, err := tx.Sign(key)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the spend: %v", failed, err)
	}

	return signedTx
}

// =============================================================================

func Test_ChainLifecycle(t *testing.T) {
	t.Log("Given the need to apply blocks and keep balances consistent.")
	{
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		owner := signature.AddressFromPublicKey(&key.PublicKey)
		gen := testGenesis(owner)

		strg, err := memory.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct storage: %v", failed, err)
		}

		db, err := database.New(gen, strg, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the database: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to open the database.", success)

		if bal := db.Balance(owner); bal != gen.MiningReward {
			t.Fatalf("\t%s\tShould credit the genesis coinbase: got %d, exp %d", failed, bal, gen.MiningReward)
		}
		t.Logf("\t%s\tShould credit the genesis coinbase.", success)

		// Spend the genesis coinbase: 30 to a second party, 10 fee, 60 change.
		const toAddr = "beef1deadbeef2deadbeef3deadbeef4deadbeef"
		signedTx := spendGenesis(t, db, key, toAddr, 30, 10)

		coinbase := database.NewCoinbaseTx(owner, gen.MiningReward+10)
		block := mineBlock(t, gen, db.LatestBlock(), []database.Tx{coinbase, signedTx})

		if err := db.ApplyBlock(block); err != nil {
			t.Fatalf("\t%s\tShould be able to apply the mined block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to apply the mined block.", success)

		if bal := db.Balance(toAddr); bal != 30 {
			t.Fatalf("\t%s\tShould credit the receiver: got %d, exp %d", failed, bal, 30)
		}
		if bal := db.Balance(owner); bal != 170 {
			t.Fatalf("\t%s\tShould credit change and coinbase to the owner: got %d, exp %d", failed, bal, 170)
		}
		t.Logf("\t%s\tShould move exactly the spent value.", success)

		// Total spendable value equals everything minted: two coinbases.
		if total := db.Balance(owner) + db.Balance(toAddr); total != 2*gen.MiningReward {
			t.Fatalf("\t%s\tShould conserve minted supply: got %d, exp %d", failed, total, 2*gen.MiningReward)
		}
		t.Logf("\t%s\tShould conserve minted supply.", success)

		// The spent output must be gone from the unspent set.
		doubleSpend := database.NewTx(
			[]database.TxInput{{TxID: signedTx.Inputs[0].TxID, OutputIndex: signedTx.Inputs[0].OutputIndex}},
			[]database.TxOutput{{Value: 5, PubKeyHash: toAddr}},
		)
		signedDouble, err := doubleSpend.Sign(key)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the double spend: %v", failed, err)
		}
		if err := database.VerifyTx(signedDouble, db.CopyUTXO()); !errors.Is(err, database.ErrUnknownOutput) {
			t.Fatalf("\t%s\tShould reject a double spend: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a double spend.", success)

		// A block whose coinbase claims more than subsidy plus fees must be
		// rejected.
		greedy := database.NewCoinbaseTx(owner, gen.MiningReward+1)
		badBlock := mineBlock(t, gen, db.LatestBlock(), []database.Tx{greedy})
		if err := db.ApplyBlock(badBlock); err == nil {
			t.Fatalf("\t%s\tShould reject a coinbase minting more than subsidy plus fees.", failed)
		}
		t.Logf("\t%s\tShould reject a coinbase minting more than subsidy plus fees.", success)

		// Reopening the database over the same storage must replay to the
		// same tip and balances.
		db2, err := database.New(gen, strg, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to replay the stored chain: %v", failed, err)
		}
		if db2.LatestBlock().Hash() != db.LatestBlock().Hash() {
			t.Fatalf("\t%s\tShould replay to the same tip: got %s, exp %s", failed, db2.LatestBlock().Hash(), db.LatestBlock().Hash())
		}
		if db2.Balance(owner) != db.Balance(owner) {
			t.Fatalf("\t%s\tShould replay to the same balances.", failed)
		}
		t.Logf("\t%s\tShould replay the stored chain to the same state.", success)
	}
}

func Test_MiningCancel(t *testing.T) {
	t.Log("Given the need to abort mining when the context is cancelled.")
	{
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		owner := signature.AddressFromPublicKey(&key.PublicKey)
		gen := testGenesis(owner)

		strg, _ := memory.New()
		db, err := database.New(gen, strg, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the database: %v", failed, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = database.POW(ctx, database.POWArgs{
			Difficulty: gen.Difficulty,
			PrevBlock:  db.LatestBlock(),
			Trans:      []database.Tx{database.NewCoinbaseTx(owner, gen.MiningReward)},
			EvHandler:  nopEv,
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("\t%s\tShould stop mining with the context error: %v", failed, err)
		}
		t.Logf("\t%s\tShould stop mining with the context error.", success)
	}
}

func Test_ReplaceChain(t *testing.T) {
	t.Log("Given the need to adopt a heavier chain all or nothing.")
	{
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		owner := signature.AddressFromPublicKey(&key.PublicKey)
		gen := testGenesis(owner)

		strgA, _ := memory.New()
		dbA, err := database.New(gen, strgA, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database A: %v", failed, err)
		}

		strgB, _ := memory.New()
		dbB, err := database.New(gen, strgB, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database B: %v", failed, err)
		}

		// Chain A extends by one block carrying a spend.
		const toAddr = "beef1deadbeef2deadbeef3deadbeef4deadbeef"
		spend := spendGenesis(t, dbA, key, toAddr, 30, 10)
		blockA := mineBlock(t, gen, dbA.LatestBlock(), []database.Tx{database.NewCoinbaseTx(owner, gen.MiningReward+10), spend})
		if err := dbA.ApplyBlock(blockA); err != nil {
			t.Fatalf("\t%s\tShould be able to extend chain A: %v", failed, err)
		}

		// Chain B extends by two coinbase only blocks, so it carries more
		// work.
		for i := 0; i < 2; i++ {
			block := mineBlock(t, gen, dbB.LatestBlock(), []database.Tx{database.NewCoinbaseTx(owner, gen.MiningReward)})
			if err := dbB.ApplyBlock(block); err != nil {
				t.Fatalf("\t%s\tShould be able to extend chain B: %v", failed, err)
			}
		}

		if database.ChainWork(dbB.Blocks()).Cmp(database.ChainWork(dbA.Blocks())) <= 0 {
			t.Fatalf("\t%s\tShould have more work on chain B.", failed)
		}
		t.Logf("\t%s\tShould have more work on chain B.", success)

		// A candidate with a tampered block must be refused and leave the
		// database untouched.
		tipBefore := dbA.LatestBlock().Hash()
		balBefore := dbA.Balance(owner)

		tampered := dbB.Blocks()
		tampered[1].Header.TransRoot = signature.ZeroHash
		if _, err := dbA.ReplaceChain(tampered); err == nil {
			t.Fatalf("\t%s\tShould refuse a candidate with an invalid block.", failed)
		}
		if dbA.LatestBlock().Hash() != tipBefore || dbA.Balance(owner) != balBefore {
			t.Fatalf("\t%s\tShould leave the chain untouched after a refused candidate.", failed)
		}
		t.Logf("\t%s\tShould leave the chain untouched after a refused candidate.", success)

		// The intact candidate must be adopted and the abandoned block
		// returned.
		removed, err := dbA.ReplaceChain(dbB.Blocks())
		if err != nil {
			t.Fatalf("\t%s\tShould adopt the heavier chain: %v", failed, err)
		}
		if len(removed) != 1 || removed[0].Hash() != blockA.Hash() {
			t.Fatalf("\t%s\tShould return the abandoned block.", failed)
		}
		t.Logf("\t%s\tShould adopt the heavier chain and return the abandoned block.", success)

		if dbA.LatestBlock().Hash() != dbB.LatestBlock().Hash() {
			t.Fatalf("\t%s\tShould share the tip with the adopted chain.", failed)
		}
		if dbA.Balance(toAddr) != 0 {
			t.Fatalf("\t%s\tShould no longer credit the abandoned spend.", failed)
		}
		if dbA.Balance(owner) != 3*gen.MiningReward {
			t.Fatalf("\t%s\tShould rebuild balances from the adopted chain: got %d, exp %d", failed, dbA.Balance(owner), 3*gen.MiningReward)
		}
		t.Logf("\t%s\tShould rebuild balances from the adopted chain.", success)

		// Storage must have been rewritten to the adopted chain.
		dbA2, err := database.New(gen, strgA, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to replay the rewritten storage: %v", failed, err)
		}
		if dbA2.LatestBlock().Hash() != dbB.LatestBlock().Hash() {
			t.Fatalf("\t%s\tShould replay the adopted chain from storage.", failed)
		}
		t.Logf("\t%s\tShould replay the adopted chain from storage.", success)
	}
}

func Test_ForgedChainRejected(t *testing.T) {
	t.Log("Given the need to refuse chains not anchored on the real genesis.")
	{
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		owner := signature.AddressFromPublicKey(&key.PublicKey)
		gen := testGenesis(owner)

		strg, _ := memory.New()
		db, err := database.New(gen, strg, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the database: %v", failed, err)
		}

		tipBefore := db.LatestBlock().Hash()

		// A chain built on a genesis declaring difficulty zero: every block
		// hash is trivially solved, so the whole chain costs no work to
		// produce and can be made arbitrarily long.
		const attacker = "bad01bad02bad03bad04bad05bad06bad07bad08"

		forgedGen := gen
		forgedGen.Difficulty = 0
		forgedGen.BeneficiaryID = attacker
		forgedGenesis, err := database.GenesisBlock(forgedGen)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build the forged genesis: %v", failed, err)
		}

		forged := []database.Block{forgedGenesis}
		for i := 0; i < 20; i++ {
			prev := forged[len(forged)-1]
			tree, err := merkle.NewTree([]database.Tx{database.NewCoinbaseTx(attacker, gen.MiningReward)})
			if err != nil {
				t.Fatalf("\t%s\tShould be able to build the merkle tree: %v", failed, err)
			}
			forged = append(forged, database.Block{
				Header: database.BlockHeader{
					Number:        prev.Header.Number + 1,
					PrevBlockHash: prev.Hash(),
					TimeStamp:     prev.Header.TimeStamp + 1,
					Nonce:         0,
					Difficulty:    0,
					TransRoot:     tree.RootHex(),
				},
				Trans: tree,
			})
		}

		if _, err := db.ReplaceChain(forged); err == nil {
			t.Fatalf("\t%s\tShould refuse a chain on a forged genesis.", failed)
		}
		if db.LatestBlock().Hash() != tipBefore || db.Balance(attacker) != 0 {
			t.Fatalf("\t%s\tShould leave the chain untouched after the forged genesis.", failed)
		}
		t.Logf("\t%s\tShould refuse a chain on a forged genesis.", success)

		// A chain anchored on the real genesis whose later blocks declare
		// difficulty zero must fail the network difficulty check even though
		// each block's declared difficulty is trivially solved.
		cheap := []database.Block{db.LatestBlock()}
		for i := 0; i < 2; i++ {
			prev := cheap[len(cheap)-1]
			tree, err := merkle.NewTree([]database.Tx{database.NewCoinbaseTx(attacker, gen.MiningReward)})
			if err != nil {
				t.Fatalf("\t%s\tShould be able to build the merkle tree: %v", failed, err)
			}
			cheap = append(cheap, database.Block{
				Header: database.BlockHeader{
					Number:        prev.Header.Number + 1,
					PrevBlockHash: prev.Hash(),
					TimeStamp:     prev.Header.TimeStamp + 1,
					Nonce:         0,
					Difficulty:    0,
					TransRoot:     tree.RootHex(),
				},
				Trans: tree,
			})
		}

		if _, err := db.ReplaceChain(cheap); err == nil {
			t.Fatalf("\t%s\tShould refuse blocks declaring a difficulty below the network.", failed)
		}
		if db.LatestBlock().Hash() != tipBefore || db.Balance(attacker) != 0 {
			t.Fatalf("\t%s\tShould leave the chain untouched after the cheap blocks.", failed)
		}
		t.Logf("\t%s\tShould refuse blocks declaring a difficulty below the network.", success)
	}
}

func Test_ReplaceChainWorkGuard(t *testing.T) {
	t.Log("Given the need to decide chain selection and swap as one step.")
	{
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		owner := signature.AddressFromPublicKey(&key.PublicKey)
		gen := testGenesis(owner)

		strgA, _ := memory.New()
		dbA, err := database.New(gen, strgA, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database A: %v", failed, err)
		}

		strgB, _ := memory.New()
		dbB, err := database.New(gen, strgB, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database B: %v", failed, err)
		}

		// Both chains gain one block, so the candidate carries equal work.
		// The database itself must refuse the swap: by the time it runs, a
		// caller's earlier work comparison may be stale.
		blockA := mineBlock(t, gen, dbA.LatestBlock(), []database.Tx{database.NewCoinbaseTx(owner, gen.MiningReward)})
		if err := dbA.ApplyBlock(blockA); err != nil {
			t.Fatalf("\t%s\tShould be able to extend chain A: %v", failed, err)
		}
		blockB := mineBlock(t, gen, dbB.LatestBlock(), []database.Tx{database.NewCoinbaseTx(owner, gen.MiningReward)})
		if err := dbB.ApplyBlock(blockB); err != nil {
			t.Fatalf("\t%s\tShould be able to extend chain B: %v", failed, err)
		}

		if _, err := dbA.ReplaceChain(dbB.Blocks()); err == nil {
			t.Fatalf("\t%s\tShould refuse a candidate that does not carry more work.", failed)
		}
		if dbA.LatestBlock().Hash() != blockA.Hash() {
			t.Fatalf("\t%s\tShould retain the current chain.", failed)
		}
		t.Logf("\t%s\tShould refuse the swap inside the database lock.", success)
	}
}

// =============================================================================

// flakyStorage wraps a memory storage and fails a configured number of
// writes before letting them through.
type flakyStorage struct {
	*memory.Memory
	failures int
}

func (fs *flakyStorage) Write(blockData database.BlockData) error {
	if fs.failures > 0 {
		fs.failures--
		return errors.New("storage unavailable")
	}
	return fs.Memory.Write(blockData)
}

// corruptStorage reports a readable but undecodable block during replay.
type corruptStorage struct {
	*memory.Memory
}

func (cs *corruptStorage) ForEach() database.Iterator {
	return &corruptIterator{}
}

type corruptIterator struct {
	reads int
}

func (ci *corruptIterator) Next() (database.BlockData, error) {
	ci.reads++
	return database.BlockData{}, errors.New("bit rot")
}

func (ci *corruptIterator) Done() bool {
	return ci.reads > 1
}

func Test_CorruptReplay(t *testing.T) {
	t.Log("Given the need to refuse starting over unverifiable storage.")
	{
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		gen := testGenesis(signature.AddressFromPublicKey(&key.PublicKey))

		mem, _ := memory.New()
		if _, err := database.New(gen, &corruptStorage{Memory: mem}, nopEv); err == nil {
			t.Fatalf("\t%s\tShould refuse to open over corrupt storage.", failed)
		}
		t.Logf("\t%s\tShould refuse to open over corrupt storage.", success)
	}
}

func Test_PersistenceRetry(t *testing.T) {
	t.Log("Given the need to retry block persistence without losing chain state.")
	{
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}
		owner := signature.AddressFromPublicKey(&key.PublicKey)
		gen := testGenesis(owner)

		mem, _ := memory.New()
		strg := &flakyStorage{Memory: mem, failures: 1}

		db, err := database.New(gen, strg, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the database: %v", failed, err)
		}

		// The first apply hits the write failure but the block is still part
		// of the chain.
		block1 := mineBlock(t, gen, db.LatestBlock(), []database.Tx{database.NewCoinbaseTx(owner, gen.MiningReward)})
		if err := db.ApplyBlock(block1); err != nil {
			t.Fatalf("\t%s\tShould apply the block despite the write failure: %v", failed, err)
		}
		if db.Height() != 1 {
			t.Fatalf("\t%s\tShould have the block in the chain: got height %d", failed, db.Height())
		}
		t.Logf("\t%s\tShould apply the block despite the write failure.", success)

		if _, err := mem.GetBlock(1); err == nil {
			t.Fatalf("\t%s\tShould not have persisted the block yet.", failed)
		}

		// The next apply flushes the queued block along with the new one.
		block2 := mineBlock(t, gen, db.LatestBlock(), []database.Tx{database.NewCoinbaseTx(owner, gen.MiningReward)})
		if err := db.ApplyBlock(block2); err != nil {
			t.Fatalf("\t%s\tShould apply the second block: %v", failed, err)
		}

		for num := uint64(1); num <= 2; num++ {
			if _, err := mem.GetBlock(num); err != nil {
				t.Fatalf("\t%s\tShould have persisted block %d after the retry: %v", failed, num, err)
			}
		}
		t.Logf("\t%s\tShould persist queued blocks on the next write.", success)
	}
}
