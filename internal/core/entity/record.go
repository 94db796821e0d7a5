package entity

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Record is a notification as kept in the outbox and published downstream.
// Body is the JSON document; the other fields are its indexable projection.
type Record struct {
	ID         string `validate:"required"`
	Topic      Topic  `validate:"required"`
	Counter    uint32
	Verdict    VerdictKind
	Hash       string
	Source     string
	ReceivedAt time.Time
	Body       []byte `validate:"required"`
}

// RecordID identifies a notification independently of its delivery:
// topic:counter:sha256(payload).
func RecordID(topic Topic, counter uint32, payload []byte) string {
	digest := chainhash.HashH(payload)
	return topic.String() + ":" + strconv.FormatUint(uint64(counter), 10) + ":" + hex.EncodeToString(digest[:])
}
