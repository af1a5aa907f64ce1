package decoder

// MaxFrameSize is the largest frame the node handles: 14 bytes of Ethernet
// header, a 1500 byte MTU and 4 bytes of VLAN tag or CRC.
const MaxFrameSize = 1522

// PacketBuffer is the single frame buffer owned by the node. Receive fills it,
// builders rewrite it in place and transmit sends a prefix of it.
type PacketBuffer [MaxFrameSize]byte
