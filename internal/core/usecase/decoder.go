package usecase

import (
	"encoding/binary"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
)

// Decode turns the parts of one multipart message into a Notification. It
// never retains parts; the payload is copied.
func Decode(parts [][]byte) (*entity.Notification, error) {
	if len(parts) != entity.PartCount {
		return nil, apperr.NewMalformedFrameErr(entity.PartCount, len(parts))
	}

	shape, ok := entity.ShapeFor(string(parts[0]))
	if !ok {
		return nil, apperr.NewUnknownTopicErr(parts[0], entity.TopicMaxLen)
	}
	if len(parts) != shape.PartCount {
		return nil, apperr.NewMalformedFrameErr(shape.PartCount, len(parts))
	}

	counterPart := parts[shape.CounterIndex]
	if len(counterPart) != entity.CounterLen {
		return nil, apperr.NewInvalidLengthErr(shape.Name, shape.CounterIndex, entity.CounterLen, len(counterPart))
	}

	payload := parts[shape.PayloadIndex]
	switch {
	case shape.PayloadLen >= 0 && len(payload) != shape.PayloadLen:
		return nil, apperr.NewInvalidLengthErr(shape.Name, shape.PayloadIndex, shape.PayloadLen, len(payload))
	case len(payload) < shape.MinPayloadLen:
		return nil, apperr.NewInvalidLengthErr(shape.Name, shape.PayloadIndex, shape.MinPayloadLen, len(payload))
	}

	n := &entity.Notification{
		Topic:   shape.Topic,
		Payload: append([]byte(nil), payload...),
		Counter: binary.LittleEndian.Uint32(counterPart),
	}
	if shape.Topic == entity.TopicSequence {
		seq, err := decodeSequence(shape, payload)
		if err != nil {
			return nil, err
		}
		n.Sequence = seq
	}
	return n, nil
}

// decodeSequence parses hash(32) | kind(1) [| mempool sequence(8, LE)].
func decodeSequence(shape entity.Shape, payload []byte) (*entity.SequenceMessage, error) {
	kind := entity.SequenceKind(payload[entity.HashLen])
	if !kind.Valid() {
		return nil, apperr.NewInvalidSequenceKindErr(byte(kind))
	}
	if len(payload) != kind.PayloadLen() {
		return nil, apperr.NewInvalidLengthErr(shape.Name, shape.PayloadIndex, kind.PayloadLen(), len(payload))
	}

	msg := &entity.SequenceMessage{Kind: kind, Hash: entity.HashFromWire(payload)}
	if kind.HasMempoolSequence() {
		msg.MempoolSequence = binary.LittleEndian.Uint64(payload[entity.HashLen+1:])
	}
	return msg, nil
}
