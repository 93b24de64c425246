package transfer

import (
	"encoding/hex"
	"hash"

	"github.com/kelindar/bitmap"
	"golang.org/x/crypto/blake2b"
)

// Stats counts what happened during one session. Sequence numbers are
// absolute (0 for the first block) so they survive block number wraparound.
type Stats struct {
	Blocks      uint32
	Bytes       int64
	Retransmits int
	Duplicates  int

	resent bitmap.Bitmap
	digest hash.Hash
}

func newStats() *Stats {
	// New256 only fails for keys longer than 64 bytes.
	digest, _ := blake2b.New256(nil)
	return &Stats{digest: digest}
}

func (s *Stats) delivered(payload []byte) {
	s.Blocks++
	s.Bytes += int64(len(payload))
	s.digest.Write(payload)
}

func (s *Stats) retransmitted(seq uint32) {
	s.Retransmits++
	s.resent.Set(seq)
}

func (s *Stats) duplicate(seq uint32) {
	s.Duplicates++
	s.resent.Set(seq)
}

// Repeated lists the sequence numbers of blocks that were sent (sender) or
// received (receiver) more than once.
func (s *Stats) Repeated() []uint32 {
	seqs := make([]uint32, 0, s.resent.Count())
	s.resent.Range(func(x uint32) {
		seqs = append(seqs, x)
	})
	return seqs
}

// Digest is the hex BLAKE2b-256 of every delivered payload byte, in order.
func (s *Stats) Digest() string {
	return hex.EncodeToString(s.digest.Sum(nil))
}
