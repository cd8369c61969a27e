// Package boltdb implements the ability to read and write blocks inside
// a single bolt database file.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/boltdb/bolt"
	"github.com/tessercoin/tesser/foundation/blockchain/database"
)

// blocksBucket is the name of the bucket holding the block records.
const blocksBucket = "blocks"

// BoltDB represents the serialization implementation for reading and
// storing blocks inside a bolt database. This implements the
// database.Storage interface.
type BoltDB struct {
	db *bolt.DB
}

// New constructs a BoltDB value for use, creating the blocks bucket if it
// does not already exist.
func New(dbPath string) (*BoltDB, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}

	update := func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(blocksBucket))
		return err
	}

	if err := db.Update(update); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltDB{db: db}, nil
}

// Close releases the underlying bolt database file.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Write takes the specified block and stores it inside the blocks bucket
// keyed by the block number.
func (b *BoltDB) Write(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	update := func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(blocksBucket))
		return bkt.Put(blockKey(blockData.Header.Number), data)
	}

	return b.db.Update(update)
}

// GetBlock searches the blocks bucket to locate and return the contents of
// the specified block by number.
func (b *BoltDB) GetBlock(num uint64) (database.BlockData, error) {
	var blockData database.BlockData

	view := func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(blocksBucket))
		data := bkt.Get(blockKey(num))
		if data == nil {
			return fmt.Errorf("block %d: %w", num, fs.ErrNotExist)
		}
		return json.Unmarshal(data, &blockData)
	}

	if err := b.db.View(view); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks starting with
// block number 1.
func (b *BoltDB) ForEach() database.Iterator {
	return &boltIterator{boltDB: b}
}

// Reset will clear out the blocks bucket.
func (b *BoltDB) Reset() error {
	update := func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(blocksBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(blocksBucket))
		return err
	}

	return b.db.Update(update)
}

// blockKey encodes a block number as a big endian key so the bucket keeps
// the blocks in chain order.
func blockKey(num uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, num)
	return key
}

// =============================================================================

// boltIterator represents the iteration implementation for walking through
// and reading blocks inside the bolt database. This implements the database
// Iterator interface.
type boltIterator struct {
	boltDB  *BoltDB // Access to the bolt storage API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the bucket. Only a missing key marks
// the end of the chain; a record that fails to decode keeps the iterator
// open so the caller sees the corruption instead of a truncated chain.
func (bi *boltIterator) Next() (database.BlockData, error) {
	if bi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	bi.current++
	blockData, err := bi.boltDB.GetBlock(bi.current)
	if errors.Is(err, fs.ErrNotExist) {
		bi.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (bi *boltIterator) Done() bool {
	return bi.eoc
}
