// Package dedupe guards the saga engine's reply handlers against a
// redelivered message advancing (or compensating) a saga twice.
//
// A bloom filter is the right trade-off here the same way
// pkg/messaging.DeduplicatingConsumer uses one: reply redelivery under
// at-least-once delivery is rare, so a small false-positive rate that
// occasionally drops a legitimate reply is preferable to the cost of an
// exact, unbounded "seen" set kept forever.
package dedupe

import (
	"fmt"

	"github.com/chris-alexander-pop/system-design-library/pkg/datastructures/bloomfilter"
)

// ReplyGuard reports whether a (sagaID, step, outcome) reply has already
// been processed.
type ReplyGuard struct {
	seen *bloomfilter.BloomFilter
}

// NewReplyGuard builds a guard sized for expectedReplies total reply
// deliveries at the given false-positive rate.
func NewReplyGuard(expectedReplies uint, falsePositiveRate float64) *ReplyGuard {
	return &ReplyGuard{seen: bloomfilter.New(expectedReplies, falsePositiveRate)}
}

// SeenAndMark reports whether this reply was already marked processed,
// and marks it processed as a side effect. A true result means the caller
// should treat the reply as a duplicate and skip it.
func (g *ReplyGuard) SeenAndMark(sagaID int64, stepName string, success bool) bool {
	key := []byte(fmt.Sprintf("%d:%s:%t", sagaID, stepName, success))
	if g.seen.Contains(key) {
		return true
	}
	g.seen.Add(key)
	return false
}
