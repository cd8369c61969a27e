package disk_test

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/storage/disk"
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

func Test_WriteRead(t *testing.T) {
	strg, err := disk.New(t.TempDir())
	require.NoError(t, err)
	defer strg.Close()

	exp := newBlockData(1)
	require.NoError(t, strg.Write(exp))

	got, err := strg.GetBlock(1)
	require.NoError(t, err)
	require.Equal(t, exp, got)

	_, err = strg.GetBlock(2)
	require.Error(t, err)
}

func Test_Iterator(t *testing.T) {
	strg, err := disk.New(t.TempDir())
	require.NoError(t, err)
	defer strg.Close()

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
	dbPath := t.TempDir()
	strg, err := disk.New(dbPath)
	require.NoError(t, err)
	defer strg.Close()

	require.NoError(t, strg.Write(newBlockData(1)))
	require.NoError(t, os.WriteFile(path.Join(dbPath, "2.json"), []byte("not json"), 0600))

	iter := strg.ForEach()

	_, err = iter.Next()
	require.NoError(t, err)

	// A block that exists but does not decode is a corruption error, not a
	// clean end of chain.
	_, err = iter.Next()
	require.Error(t, err)
	require.False(t, iter.Done())
}

func Test_Reset(t *testing.T) {
	strg, err := disk.New(t.TempDir())
	require.NoError(t, err)
	defer strg.Close()

	require.NoError(t, strg.Write(newBlockData(1)))
	require.NoError(t, strg.Reset())

	_, err = strg.GetBlock(1)
	require.Error(t, err)

	// The directory must be usable again after a reset.
	require.NoError(t, strg.Write(newBlockData(1)))
}
