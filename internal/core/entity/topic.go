package entity

// Wire constants shared by every topic.
const (
	// TopicMaxLen is the longest recognised topic name ("hashblock", "rawblock"...).
	TopicMaxLen = 9
	// PartCount is the number of parts in every notification message.
	PartCount = 3
	// CounterLen is the size of the little-endian sequence counter part.
	CounterLen = 4
	// HashLen is the size of a block or transaction hash on the wire.
	HashLen = 32
)

// Topic identifies a notification category published by the node.
type Topic uint8

const (
	TopicUnknown Topic = iota
	TopicHashBlock
	TopicHashTx
	TopicHashWTx
	TopicRawBlock
	TopicRawTx
	TopicSequence
)

// Shape describes the multipart layout implied by a topic. PayloadLen is the
// exact payload size, or -1 when only MinPayloadLen applies.
type Shape struct {
	Topic         Topic
	Name          string
	PartCount     int
	PayloadIndex  int
	CounterIndex  int
	PayloadLen    int
	MinPayloadLen int
}

var shapes = [...]Shape{
	TopicHashBlock: {Topic: TopicHashBlock, Name: "hashblock", PartCount: PartCount, PayloadIndex: 1, CounterIndex: 2, PayloadLen: HashLen, MinPayloadLen: HashLen},
	TopicHashTx:    {Topic: TopicHashTx, Name: "hashtx", PartCount: PartCount, PayloadIndex: 1, CounterIndex: 2, PayloadLen: HashLen, MinPayloadLen: HashLen},
	TopicHashWTx:   {Topic: TopicHashWTx, Name: "hashwtx", PartCount: PartCount, PayloadIndex: 1, CounterIndex: 2, PayloadLen: -1, MinPayloadLen: HashLen},
	TopicRawBlock:  {Topic: TopicRawBlock, Name: "rawblock", PartCount: PartCount, PayloadIndex: 1, CounterIndex: 2, PayloadLen: -1},
	TopicRawTx:     {Topic: TopicRawTx, Name: "rawtx", PartCount: PartCount, PayloadIndex: 1, CounterIndex: 2, PayloadLen: -1},
	TopicSequence:  {Topic: TopicSequence, Name: "sequence", PartCount: PartCount, PayloadIndex: 1, CounterIndex: 2, PayloadLen: -1, MinPayloadLen: sequenceBaseLen},
}

// ShapeFor looks up the layout of a topic by its exact wire name.
func ShapeFor(name string) (Shape, bool) {
	switch name {
	case "hashblock":
		return shapes[TopicHashBlock], true
	case "hashtx":
		return shapes[TopicHashTx], true
	case "hashwtx":
		return shapes[TopicHashWTx], true
	case "rawblock":
		return shapes[TopicRawBlock], true
	case "rawtx":
		return shapes[TopicRawTx], true
	case "sequence":
		return shapes[TopicSequence], true
	}
	return Shape{}, false
}

// ParseTopic maps a wire name to its Topic.
func ParseTopic(name string) (Topic, bool) {
	s, ok := ShapeFor(name)
	return s.Topic, ok
}

// Topics lists every recognised topic in registry order.
func Topics() []Topic {
	return []Topic{TopicHashBlock, TopicHashTx, TopicHashWTx, TopicRawBlock, TopicRawTx, TopicSequence}
}

// Known reports whether t is a registered topic.
func (t Topic) Known() bool { return t > TopicUnknown && int(t) < len(shapes) }

// Shape returns the layout of t; the zero Shape for unknown topics.
func (t Topic) Shape() Shape {
	if !t.Known() {
		return Shape{}
	}
	return shapes[t]
}

func (t Topic) String() string {
	if !t.Known() {
		return "unknown"
	}
	return shapes[t].Name
}

// IsHash reports whether the payload starts with a 32-byte hash.
func (t Topic) IsHash() bool {
	return t == TopicHashBlock || t == TopicHashTx || t == TopicHashWTx
}
