package entity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// sequenceBaseLen is hash + kind; mempool kinds append an 8-byte LE sequence.
	sequenceBaseLen    = HashLen + 1
	sequenceMempoolLen = sequenceBaseLen + 8
)

// SequenceKind is the label byte of a "sequence" notification.
type SequenceKind byte

const (
	SequenceBlockConnected     SequenceKind = 'C'
	SequenceBlockDisconnected  SequenceKind = 'D'
	SequenceTransactionRemoved SequenceKind = 'R'
	SequenceTransactionAdded   SequenceKind = 'A'
)

func (k SequenceKind) Valid() bool {
	switch k {
	case SequenceBlockConnected, SequenceBlockDisconnected, SequenceTransactionRemoved, SequenceTransactionAdded:
		return true
	}
	return false
}

// HasMempoolSequence reports whether the kind carries a mempool sequence.
func (k SequenceKind) HasMempoolSequence() bool {
	return k == SequenceTransactionRemoved || k == SequenceTransactionAdded
}

// PayloadLen is the exact sequence payload size for the kind.
func (k SequenceKind) PayloadLen() int {
	if k.HasMempoolSequence() {
		return sequenceMempoolLen
	}
	return sequenceBaseLen
}

func (k SequenceKind) String() string {
	switch k {
	case SequenceBlockConnected:
		return "BlockConnected"
	case SequenceBlockDisconnected:
		return "BlockDisconnected"
	case SequenceTransactionRemoved:
		return "TransactionRemoved"
	case SequenceTransactionAdded:
		return "TransactionAdded"
	default:
		return fmt.Sprintf("SequenceKind(0x%02x)", byte(k))
	}
}

// SequenceMessage is the decoded payload of a "sequence" notification. Hash is
// in internal byte order. MempoolSequence is only meaningful for mempool kinds.
type SequenceMessage struct {
	Kind            SequenceKind
	Hash            chainhash.Hash
	MempoolSequence uint64
}

// Bytes serializes the message into its wire payload.
func (m SequenceMessage) Bytes() []byte {
	out := make([]byte, m.Kind.PayloadLen())
	putReversed(out[:HashLen], m.Hash[:])
	out[HashLen] = byte(m.Kind)
	if m.Kind.HasMempoolSequence() {
		binary.LittleEndian.PutUint64(out[sequenceBaseLen:], m.MempoolSequence)
	}
	return out
}

func (m SequenceMessage) String() string {
	if m.Kind.HasMempoolSequence() {
		return fmt.Sprintf("%s(%s, mempool_sequence=%d)", m.Kind, m.Hash, m.MempoolSequence)
	}
	return fmt.Sprintf("%s(%s)", m.Kind, m.Hash)
}

// HashFromWire converts a 32-byte hash in wire (display) order into a
// chainhash.Hash in internal byte order.
func HashFromWire(b []byte) chainhash.Hash {
	var h chainhash.Hash
	putReversed(h[:], b[:HashLen])
	return h
}

// Notification is one decoded message. Payload is an owned copy of the
// payload part, byte for byte. Sequence is set only for TopicSequence.
type Notification struct {
	Topic    Topic
	Payload  []byte
	Counter  uint32
	Sequence *SequenceMessage
}

// Hash returns the hash carried by hash topics and sequence messages, in
// internal byte order. The wire carries it reversed.
func (n *Notification) Hash() (chainhash.Hash, bool) {
	switch {
	case n.Topic == TopicSequence && n.Sequence != nil:
		return n.Sequence.Hash, true
	case n.Topic.IsHash() && len(n.Payload) >= HashLen:
		return HashFromWire(n.Payload), true
	}
	return chainhash.Hash{}, false
}

// Wallet returns the wallet name of a "hashwtx" notification.
func (n *Notification) Wallet() string {
	if n.Topic != TopicHashWTx || len(n.Payload) <= HashLen {
		return ""
	}
	return string(bytes.TrimRight(n.Payload[HashLen:], "\x00"))
}

// Transaction deserializes a "rawtx" payload.
func (n *Notification) Transaction() (*wire.MsgTx, error) {
	if n.Topic != TopicRawTx {
		return nil, apperr.NewInvalidArgErr("not a rawtx notification: "+n.Topic.String(), nil)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(n.Payload)); err != nil {
		return nil, apperr.NewInvalidArgErr("failed to deserialize transaction", err)
	}
	return tx, nil
}

// Block deserializes a "rawblock" payload.
func (n *Notification) Block() (*wire.MsgBlock, error) {
	if n.Topic != TopicRawBlock {
		return nil, apperr.NewInvalidArgErr("not a rawblock notification: "+n.Topic.String(), nil)
	}
	var blk wire.MsgBlock
	if err := blk.Deserialize(bytes.NewReader(n.Payload)); err != nil {
		return nil, apperr.NewInvalidArgErr("failed to deserialize block", err)
	}
	return &blk, nil
}

// Frames rebuilds the multipart wire form [topic, payload, counter].
func (n *Notification) Frames() [][]byte {
	counter := make([]byte, CounterLen)
	binary.LittleEndian.PutUint32(counter, n.Counter)
	return [][]byte{
		[]byte(n.Topic.String()),
		append([]byte(nil), n.Payload...),
		counter,
	}
}

func (n *Notification) String() string {
	switch {
	case n.Topic == TopicSequence && n.Sequence != nil:
		return fmt.Sprintf("Sequence(%s, sequence=%d)", n.Sequence, n.Counter)
	case n.Topic == TopicHashWTx:
		h, _ := n.Hash()
		return fmt.Sprintf("HashWTx(%s, wallet=%s, sequence=%d)", h, n.Wallet(), n.Counter)
	case n.Topic.IsHash():
		h, _ := n.Hash()
		return fmt.Sprintf("%s(%s, sequence=%d)", n.Topic, h, n.Counter)
	default:
		preview := n.Payload
		if len(preview) > 16 {
			preview = preview[:16]
		}
		return fmt.Sprintf("%s(%d bytes %s.., sequence=%d)", n.Topic, len(n.Payload), hex.EncodeToString(preview), n.Counter)
	}
}

func putReversed(dst, src []byte) {
	for i := range src {
		dst[len(src)-1-i] = src[i]
	}
}
