// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"crypto/md5"
	"crypto/sha256"
	"testing"

	"github.com/tessercoin/tesser/foundation/blockchain/merkle"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(d.x)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Equals tests for equality of two pieces of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

var table = []struct {
	name string
	data []Data
}{
	{
		name: "even",
		data: []Data{{x: "Hello"}, {x: "Hi"}, {x: "Hey"}, {x: "Hola"}},
	},
	{
		name: "odd",
		data: []Data{{x: "Hello"}, {x: "Hi"}, {x: "Hey"}},
	},
	{
		name: "single",
		data: []Data{{x: "Hello"}},
	},
}

func Test_NewTree(t *testing.T) {
	for _, tst := range table {
		f := func(t *testing.T) {
			tree, err := merkle.NewTree(tst.data)
			if err != nil {
				t.Fatalf("Test %s:\tShould be able to construct the tree: %v", tst.name, err)
			}

			if len(tree.MerkleRoot) == 0 {
				t.Fatalf("Test %s:\tShould have a non empty merkle root.", tst.name)
			}

			if err := tree.Verify(); err != nil {
				t.Fatalf("Test %s:\tShould be able to verify the tree: %v", tst.name, err)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_Values(t *testing.T) {
	for _, tst := range table {
		f := func(t *testing.T) {
			tree, err := merkle.NewTree(tst.data)
			if err != nil {
				t.Fatalf("Test %s:\tShould be able to construct the tree: %v", tst.name, err)
			}

			values := tree.Values()
			if len(values) != len(tst.data) {
				t.Fatalf("Test %s:\tShould get the original values back, got %d, exp %d.", tst.name, len(values), len(tst.data))
			}

			for i, value := range values {
				if !value.Equals(tst.data[i]) {
					t.Fatalf("Test %s:\tShould keep the values in order.", tst.name)
				}
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_VerifyData(t *testing.T) {
	for _, tst := range table {
		f := func(t *testing.T) {
			tree, err := merkle.NewTree(tst.data)
			if err != nil {
				t.Fatalf("Test %s:\tShould be able to construct the tree: %v", tst.name, err)
			}

			for _, data := range tst.data {
				if err := tree.VerifyData(data); err != nil {
					t.Fatalf("Test %s:\tShould be able to verify data %q: %v", tst.name, data.x, err)
				}
			}

			if err := tree.VerifyData(Data{x: "NotInTree"}); err == nil {
				t.Fatalf("Test %s:\tShould not verify data that is not in the tree.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_Proof(t *testing.T) {
	tree, err := merkle.NewTree(table[0].data)
	if err != nil {
		t.Fatalf("Should be able to construct the tree: %v", err)
	}

	for _, data := range table[0].data {
		proof, order, err := tree.Proof(data)
		if err != nil {
			t.Fatalf("Should be able to produce a proof for %q: %v", data.x, err)
		}
		if len(proof) != len(order) {
			t.Fatal("Should have one order entry per proof hash.")
		}
		if len(proof) == 0 {
			t.Fatal("Should have a non empty proof.")
		}
	}

	if _, _, err := tree.Proof(Data{x: "NotInTree"}); err == nil {
		t.Fatal("Should not produce a proof for data that is not in the tree.")
	}
}

func Test_HashStrategy(t *testing.T) {
	tree, err := merkle.NewTree(table[0].data, merkle.WithHashStrategy[Data](md5.New))
	if err != nil {
		t.Fatalf("Should be able to construct the tree with md5: %v", err)
	}

	if err := tree.Verify(); err != nil {
		t.Fatalf("Should be able to verify the md5 tree: %v", err)
	}

	if len(tree.MerkleRoot) != md5.Size {
		t.Fatalf("Should have an md5 sized root, got %d, exp %d.", len(tree.MerkleRoot), md5.Size)
	}
}
