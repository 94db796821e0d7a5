package usecase

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/stretchr/testify/require"
)

func counterLE(c uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, c)
	return b
}

func frame(topic string, payload []byte, counter uint32) [][]byte {
	return [][]byte{[]byte(topic), payload, counterLE(counter)}
}

func seqPayload(kind byte, mempool *uint64) []byte {
	p := append(bytes.Repeat([]byte{0x11}, 31), 0x22, kind)
	if mempool != nil {
		p = binary.LittleEndian.AppendUint64(p, *mempool)
	}
	return p
}

func TestDecode_RawTx(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 68)
	parts := frame("rawtx", payload, 1)

	n, err := Decode(parts)
	require.NoError(t, err)
	require.Equal(t, entity.TopicRawTx, n.Topic)
	require.Equal(t, payload, n.Payload)
	require.Equal(t, uint32(1), n.Counter)
	require.Nil(t, n.Sequence)

	parts[1][0] = 0x00
	require.Equal(t, byte(0xab), n.Payload[0], "payload must be copied")
}

func TestDecode_HashTopics(t *testing.T) {
	hash := bytes.Repeat([]byte{0x01}, 32)
	for _, topic := range []string{"hashblock", "hashtx"} {
		n, err := Decode(frame(topic, hash, 0xdeadbeef))
		require.NoError(t, err, topic)
		require.Equal(t, topic, n.Topic.String())
		require.Equal(t, uint32(0xdeadbeef), n.Counter)
	}
}

func TestDecode_HashWTx(t *testing.T) {
	payload := append(bytes.Repeat([]byte{0x02}, 32), []byte("hot")...)
	n, err := Decode(frame("hashwtx", payload, 9))
	require.NoError(t, err)
	require.Equal(t, entity.TopicHashWTx, n.Topic)
	require.Equal(t, "hot", n.Wallet())

	_, err = Decode(frame("hashwtx", payload[:31], 9))
	require.ErrorIs(t, err, apperr.ErrInvalidLength)
}

func TestDecode_Sequence(t *testing.T) {
	mp := uint64(77)
	cases := []struct {
		name    string
		payload []byte
		kind    entity.SequenceKind
		mempool uint64
	}{
		{name: "connected", payload: seqPayload('C', nil), kind: entity.SequenceBlockConnected},
		{name: "disconnected", payload: seqPayload('D', nil), kind: entity.SequenceBlockDisconnected},
		{name: "removed", payload: seqPayload('R', &mp), kind: entity.SequenceTransactionRemoved, mempool: 77},
		{name: "added", payload: seqPayload('A', &mp), kind: entity.SequenceTransactionAdded, mempool: 77},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Decode(frame("sequence", tc.payload, 3))
			require.NoError(t, err)
			require.NotNil(t, n.Sequence)
			require.Equal(t, tc.kind, n.Sequence.Kind)
			require.Equal(t, tc.mempool, n.Sequence.MempoolSequence)
			// first wire byte is the last internal byte
			require.Equal(t, byte(0x11), n.Sequence.Hash[31])
			require.Equal(t, byte(0x22), n.Sequence.Hash[0])
			require.Equal(t, tc.payload, n.Sequence.Bytes())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	hash := bytes.Repeat([]byte{0x01}, 32)
	mp := uint64(1)
	cases := []struct {
		name     string
		parts    [][]byte
		reason   error
		expected int
		actual   int
	}{
		{name: "empty", parts: nil, reason: apperr.ErrMalformedFrame, expected: 3, actual: 0},
		{name: "two_parts", parts: [][]byte{[]byte("hashtx"), hash}, reason: apperr.ErrMalformedFrame, expected: 3, actual: 2},
		{name: "four_parts", parts: append(frame("rawtx", []byte{1}, 1), []byte{0}), reason: apperr.ErrMalformedFrame, expected: 3, actual: 4},
		{name: "two_parts_unknown_topic", parts: [][]byte{[]byte("nope"), hash}, reason: apperr.ErrMalformedFrame, expected: 3, actual: 2},
		{name: "unknown_topic", parts: frame("hashfoo", hash, 1), reason: apperr.ErrUnknownTopic},
		{name: "hashblock_31_bytes", parts: frame("hashblock", hash[:31], 1), reason: apperr.ErrInvalidLength, expected: 32, actual: 31},
		{name: "hashtx_33_bytes", parts: frame("hashtx", append(hash, 0), 1), reason: apperr.ErrInvalidLength, expected: 32, actual: 33},
		{name: "short_counter", parts: [][]byte{[]byte("rawtx"), {1}, {1, 0, 0}}, reason: apperr.ErrInvalidLength, expected: 4, actual: 3},
		{name: "long_counter", parts: [][]byte{[]byte("rawtx"), {1}, {1, 0, 0, 0, 0}}, reason: apperr.ErrInvalidLength, expected: 4, actual: 5},
		{name: "sequence_too_short", parts: frame("sequence", hash, 1), reason: apperr.ErrInvalidLength, expected: 33, actual: 32},
		{name: "sequence_bad_kind", parts: frame("sequence", seqPayload('X', nil), 1), reason: apperr.ErrInvalidSequenceKind, actual: 'X'},
		{name: "sequence_added_without_mempool", parts: frame("sequence", seqPayload('A', nil), 1), reason: apperr.ErrInvalidLength, expected: 41, actual: 33},
		{name: "sequence_connected_with_mempool", parts: frame("sequence", seqPayload('C', &mp), 1), reason: apperr.ErrInvalidLength, expected: 33, actual: 41},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Decode(tc.parts)
			require.Nil(t, n)
			require.ErrorIs(t, err, tc.reason)

			var de *apperr.FrameDecodeErr
			require.True(t, errors.As(err, &de))
			require.Equal(t, tc.expected, de.Expected)
			require.Equal(t, tc.actual, de.Actual)
		})
	}
}

func TestDecode_UnknownTopicTruncated(t *testing.T) {
	topic := []byte("averyveryverylongtopicname")
	_, err := Decode([][]byte{topic, {1}, counterLE(1)})

	var de *apperr.FrameDecodeErr
	require.ErrorAs(t, err, &de)
	require.Equal(t, []byte("averyvery"), de.Topic)
	require.Equal(t, len(topic), de.TopicLen)
	require.Equal(t, "UNKNOWN_TOPIC", de.Code())
}

func TestDecode_WrongPartCountNeverYieldsNotification(t *testing.T) {
	for n := 0; n < 8; n++ {
		if n == entity.PartCount {
			continue
		}
		parts := make([][]byte, n)
		for i := range parts {
			parts[i] = []byte("rawtx")
		}
		got, err := Decode(parts)
		require.Nil(t, got)
		require.ErrorIs(t, err, apperr.ErrMalformedFrame, "parts=%d", n)
	}
}

func TestDecode_FramesRoundTrip(t *testing.T) {
	mp := uint64(5)
	inputs := [][][]byte{
		frame("rawblock", []byte{9, 8, 7}, 100),
		frame("hashblock", bytes.Repeat([]byte{3}, 32), 0),
		frame("sequence", seqPayload('A', &mp), 0xffffffff),
	}
	for _, parts := range inputs {
		n, err := Decode(parts)
		require.NoError(t, err)
		require.Equal(t, parts, n.Frames())
	}
}
