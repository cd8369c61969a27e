package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/require"
	"github.com/tessercoin/tesser/foundation/blockchain/database"
)

func newBlockData(num uint64) database.BlockData {
	return database.BlockData{
		Hash: "0xabc",
		Header: database.BlockHeader{
			Number:        num,
			PrevBlockHash: "0xdef",
			TimeStamp:     1748793600 + num,
			Difficulty:    1,
		},
		Trans: []database.Tx{database.NewCoinbaseTx("addr", 100)},
	}
}

func newStorage(t *testing.T) *BoltDB {
	t.Helper()

	strg, err := New(filepath.Join(t.TempDir(), "blocks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { strg.Close() })

	return strg
}

func Test_WriteRead(t *testing.T) {
	strg := newStorage(t)

	exp := newBlockData(1)
	require.NoError(t, strg.Write(exp))

	got, err := strg.GetBlock(1)
	require.NoError(t, err)
	require.Equal(t, exp, got)

	_, err = strg.GetBlock(2)
	require.Error(t, err)
}

func Test_Iterator(t *testing.T) {
	strg := newStorage(t)

	for num := uint64(1); num <= 3; num++ {
		require.NoError(t, strg.Write(newBlockData(num)))
	}

	var numbers []uint64
	iter := strg.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		require.NoError(t, err)
		numbers = append(numbers, blockData.Header.Number)
	}

	require.Equal(t, []uint64{1, 2, 3}, numbers)
}

func Test_IteratorCorruption(t *testing.T) {
	strg := newStorage(t)

	require.NoError(t, strg.Write(newBlockData(1)))

	// Plant a record that exists but does not decode.
	update := func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(blocksBucket)).Put(blockKey(2), []byte("{this is not json"))
	}
	require.NoError(t, strg.db.Update(update))

	iter := strg.ForEach()

	_, err := iter.Next()
	require.NoError(t, err)

	// A record that exists but does not decode is a corruption error, not a
	// clean end of chain.
	_, err = iter.Next()
	require.Error(t, err)
	require.False(t, iter.Done())
}

func Test_Reset(t *testing.T) {
	strg := newStorage(t)

	require.NoError(t, strg.Write(newBlockData(1)))
	require.NoError(t, strg.Reset())

	_, err := strg.GetBlock(1)
	require.Error(t, err)

	// The bucket must be usable again after a reset.
	require.NoError(t, strg.Write(newBlockData(1)))
}
