package usecase

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
)

func decodeEvent(t *testing.T, topic string, payload []byte, counter uint32, v entity.SequenceVerdict) entity.Event {
	t.Helper()
	n, err := Decode(frame(topic, payload, counter))
	require.NoError(t, err)
	return entity.Event{Notification: n, Verdict: v}
}

func TestToDTO_HashTopics(t *testing.T) {
	wireHash := bytes.Repeat([]byte{0x01}, 31)
	wireHash = append(wireHash, 0xff)
	ev := decodeEvent(t, "hashtx", wireHash, 4, entity.Gap(2, 4))

	d := ToDTO(ev)
	require.Equal(t, "hashtx", d.Topic)
	require.Equal(t, uint32(4), d.Counter)
	require.Equal(t, "gap", d.Verdict)
	require.NotNil(t, d.Expected)
	require.Equal(t, uint32(2), *d.Expected)
	require.Nil(t, d.Previous)
	// display order is the wire order
	require.Equal(t, hex.EncodeToString(wireHash), d.Hash)
	require.Equal(t, hex.EncodeToString(wireHash), d.Payload)
	require.Nil(t, d.Sequence)
}

func TestToDTO_WalletAndSequence(t *testing.T) {
	payload := append(bytes.Repeat([]byte{0x02}, 32), []byte("cold")...)
	d := ToDTO(decodeEvent(t, "hashwtx", payload, 1, entity.FirstSeen(1)))
	require.Equal(t, "cold", d.Wallet)

	mp := uint64(900)
	d = ToDTO(decodeEvent(t, "sequence", seqPayload('A', &mp), 2, entity.Rewind(5, 2)))
	require.NotNil(t, d.Sequence)
	require.Equal(t, "A", d.Sequence.Kind)
	require.Equal(t, uint64(900), *d.Sequence.MempoolSequence)
	require.Equal(t, d.Hash, d.Sequence.Hash)
	require.Equal(t, uint32(5), *d.Previous)

	d = ToDTO(decodeEvent(t, "sequence", seqPayload('C', nil), 3, entity.InOrder(3)))
	require.Equal(t, "C", d.Sequence.Kind)
	require.Nil(t, d.Sequence.MempoolSequence)
}

func TestToDTO_RawPayloads(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 0), []byte{0x51}, nil))
	tx.AddTxOut(wire.NewTxOut(5000, []byte{0x6a}))
	var txBuf bytes.Buffer
	require.NoError(t, tx.Serialize(&txBuf))

	d := ToDTO(decodeEvent(t, "rawtx", txBuf.Bytes(), 1, entity.FirstSeen(1)))
	require.Equal(t, tx.TxHash().String(), d.TxID)
	require.Empty(t, d.Hash)

	hdr := wire.NewBlockHeader(1, &chainhash.Hash{2}, &chainhash.Hash{3}, 0x1d00ffff, 42)
	hdr.Timestamp = time.Unix(1700000000, 0)
	var hdrBuf bytes.Buffer
	require.NoError(t, hdr.Serialize(&hdrBuf))

	d = ToDTO(decodeEvent(t, "rawblock", hdrBuf.Bytes(), 1, entity.FirstSeen(1)))
	require.Equal(t, hdr.BlockHash().String(), d.BlockHash)

	// undecodable raw payloads still relay, without derived hashes
	d = ToDTO(decodeEvent(t, "rawtx", []byte{0x01}, 2, entity.InOrder(2)))
	require.Empty(t, d.TxID)
	require.Equal(t, "01", d.Payload)
}

func TestNotificationJSON_RoundTrip(t *testing.T) {
	mp := uint64(7)
	events := []entity.Event{
		decodeEvent(t, "hashblock", bytes.Repeat([]byte{3}, 32), 10, entity.Gap(8, 10)),
		decodeEvent(t, "rawtx", []byte{1, 2, 3}, 0xffffffff, entity.FirstSeen(0xffffffff)),
		decodeEvent(t, "sequence", seqPayload('R', &mp), 11, entity.Rewind(20, 11)),
	}
	for _, ev := range events {
		data, err := MarshalNotificationJSON(ev)
		require.NoError(t, err)
		got, err := UnmarshalNotificationJSON(data)
		require.NoError(t, err)
		require.Equal(t, ev, got)
	}
}

func TestFromDTO_Errors(t *testing.T) {
	valid := ToDTO(decodeEvent(t, "hashblock", bytes.Repeat([]byte{3}, 32), 1, entity.InOrder(1)))
	cases := []struct {
		name   string
		mutate func(d *NotificationDTO)
	}{
		{name: "bad hex", mutate: func(d *NotificationDTO) { d.Payload = "zz" }},
		{name: "unknown topic", mutate: func(d *NotificationDTO) { d.Topic = "nope" }},
		{name: "payload length", mutate: func(d *NotificationDTO) { d.Payload = "00" }},
		{name: "unknown verdict", mutate: func(d *NotificationDTO) { d.Verdict = "late" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := *valid
			tc.mutate(&d)
			_, err := FromDTO(&d)
			require.Error(t, err)
		})
	}

	_, err := FromDTO(nil)
	require.Error(t, err)
	_, err = UnmarshalNotificationJSON([]byte("[]"))
	require.Error(t, err)
	_, err = MarshalNotificationJSON(entity.Event{})
	require.Error(t, err)
}

func TestNotificationJSON_FieldNames(t *testing.T) {
	data, err := MarshalNotificationJSON(decodeEvent(t, "hashblock", bytes.Repeat([]byte{3}, 32), 1, entity.InOrder(1)))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	require.ElementsMatch(t, []string{"topic", "counter", "verdict", "hash", "payload"}, keys(m))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
