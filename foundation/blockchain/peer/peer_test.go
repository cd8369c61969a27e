package peer_test

import (
	"testing"

	"github.com/tessercoin/tesser/foundation/blockchain/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host1"}, {Host: "host2"}, {Host: "host3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, pr := range tst.peers {
				if !ps.Add(pr) {
					t.Fatalf("Test %s:\tShould report a new peer on first add.", tst.name)
				}
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould not report a known peer as new.", tst.name)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			peers = ps.Copy("host2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould exclude the specified host.", tst.name)
			}

			ps.Remove(tst.peers[0])
			if ps.Count() != len(tst.peers)-1 {
				t.Fatalf("Test %s:\tShould have one less peer after remove.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_FailureTracking(t *testing.T) {
	ps := peer.NewPeerSet()
	pr := peer.New("host1")
	ps.Add(pr)

	// Two failures keep the peer in the set.
	for i := 0; i < 2; i++ {
		if dropped := ps.RecordFailure(pr); dropped {
			t.Fatalf("Should not drop the peer after %d failures.", i+1)
		}
	}
	if ps.Count() != 1 {
		t.Fatal("Should still know the peer.")
	}

	// A success resets the count so two more failures still keep it.
	ps.RecordSuccess(pr)
	for i := 0; i < 2; i++ {
		if dropped := ps.RecordFailure(pr); dropped {
			t.Fatalf("Should not drop the peer after a reset and %d failures.", i+1)
		}
	}

	// Rediscovery re-adds known peers every cycle; that must not wipe the
	// failure count a slow failing peer has accumulated.
	if ps.Add(pr) {
		t.Fatal("Should report the peer as already known on re-add.")
	}

	// The third consecutive failure drops the peer.
	if dropped := ps.RecordFailure(pr); !dropped {
		t.Fatal("Should drop the peer on the third consecutive failure.")
	}
	if ps.Count() != 0 {
		t.Fatal("Should no longer know the peer.")
	}

	// A failure for an unknown peer is not counted.
	if dropped := ps.RecordFailure(pr); dropped {
		t.Fatal("Should not drop a peer that is not in the set.")
	}

	// The peer may rejoin.
	if !ps.Add(pr) {
		t.Fatal("Should treat the dropped peer as new on re-add.")
	}
}
