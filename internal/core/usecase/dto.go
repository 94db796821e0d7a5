package usecase

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/wire"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
)

// NotificationDTO is the JSON document relayed downstream for one event.
// Hashes are in display order. Payload carries the raw payload part as hex.
type NotificationDTO struct {
	Topic     string       `json:"topic"`
	Counter   uint32       `json:"counter"`
	Verdict   string       `json:"verdict"`
	Expected  *uint32      `json:"expected,omitempty"`
	Previous  *uint32      `json:"previous,omitempty"`
	Hash      string       `json:"hash,omitempty"`
	Wallet    string       `json:"wallet,omitempty"`
	Sequence  *SequenceDTO `json:"sequence,omitempty"`
	Payload   string       `json:"payload"`
	TxID      string       `json:"txid,omitempty"`
	BlockHash string       `json:"block_hash,omitempty"`
}

type SequenceDTO struct {
	Kind            string  `json:"kind"`
	Hash            string  `json:"hash"`
	MempoolSequence *uint64 `json:"mempool_sequence,omitempty"`
}

// ToDTO converts an event into its JSON-friendly form. Raw payloads that do
// not deserialize as a transaction or block header simply omit txid and
// block_hash.
func ToDTO(ev entity.Event) *NotificationDTO {
	n := ev.Notification
	if n == nil {
		return nil
	}
	dto := &NotificationDTO{
		Topic:   n.Topic.String(),
		Counter: n.Counter,
		Verdict: ev.Verdict.Kind.String(),
		Wallet:  n.Wallet(),
		Payload: hex.EncodeToString(n.Payload),
	}
	switch ev.Verdict.Kind {
	case entity.VerdictGap:
		exp := ev.Verdict.Expected
		dto.Expected = &exp
	case entity.VerdictRewind:
		prev := ev.Verdict.Previous
		dto.Previous = &prev
	}
	if h, ok := n.Hash(); ok {
		dto.Hash = h.String()
	}
	if s := n.Sequence; s != nil {
		seq := &SequenceDTO{Kind: string(rune(s.Kind)), Hash: s.Hash.String()}
		if s.Kind.HasMempoolSequence() {
			mp := s.MempoolSequence
			seq.MempoolSequence = &mp
		}
		dto.Sequence = seq
	}

	switch n.Topic {
	case entity.TopicRawTx:
		if tx, err := n.Transaction(); err == nil {
			dto.TxID = tx.TxHash().String()
		}
	case entity.TopicRawBlock:
		var hdr wire.BlockHeader
		if err := hdr.Deserialize(bytes.NewReader(n.Payload)); err == nil {
			dto.BlockHash = hdr.BlockHash().String()
		}
	}
	return dto
}

// FromDTO rebuilds the event by re-decoding the payload, so a document that
// decodes is always a valid notification.
func FromDTO(d *NotificationDTO) (entity.Event, error) {
	if d == nil {
		return entity.Event{}, apperr.NewInvalidArgErr("notification document is required", nil)
	}
	payload, err := hex.DecodeString(d.Payload)
	if err != nil {
		return entity.Event{}, apperr.NewInvalidArgErr("invalid payload hex", err)
	}
	counter := make([]byte, entity.CounterLen)
	binary.LittleEndian.PutUint32(counter, d.Counter)
	n, err := Decode([][]byte{[]byte(d.Topic), payload, counter})
	if err != nil {
		return entity.Event{}, err
	}

	kind, ok := entity.ParseVerdictKind(d.Verdict)
	if !ok {
		return entity.Event{}, apperr.NewInvalidArgErr("unknown verdict: "+d.Verdict, nil)
	}
	v := entity.SequenceVerdict{Kind: kind, Got: d.Counter}
	if d.Expected != nil {
		v.Expected = *d.Expected
	}
	if d.Previous != nil {
		v.Previous = *d.Previous
	}
	return entity.Event{Notification: n, Verdict: v}, nil
}

// MarshalNotificationJSON encodes ev as a NotificationDTO document.
func MarshalNotificationJSON(ev entity.Event) ([]byte, error) {
	dto := ToDTO(ev)
	if dto == nil {
		return nil, apperr.NewInvalidArgErr("event has no notification", nil)
	}
	return json.Marshal(dto)
}

// UnmarshalNotificationJSON decodes a document produced by MarshalNotificationJSON.
func UnmarshalNotificationJSON(data []byte) (entity.Event, error) {
	var d NotificationDTO
	if err := json.Unmarshal(data, &d); err != nil {
		return entity.Event{}, err
	}
	return FromDTO(&d)
}
