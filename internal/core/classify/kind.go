package classify

// Kind is the closed set of outcomes of Classify. Every receive path
// switches over it exhaustively.
type Kind uint8

const (
	// KindUnknown is a well-formed frame of an EtherType the node ignores.
	KindUnknown Kind = iota
	// KindMalformed failed a bounds or checksum check.
	KindMalformed
	// KindNotForUs is addressed to another host.
	KindNotForUs
	KindARPRequest
	KindARPReply
	KindPingRequest
	KindUDP
	KindTCP
	// KindIPOther is unicast IPv4 to the node with a protocol it does not serve.
	KindIPOther
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindMalformed:
		return "malformed"
	case KindNotForUs:
		return "not_for_us"
	case KindARPRequest:
		return "arp_request"
	case KindARPReply:
		return "arp_reply"
	case KindPingRequest:
		return "ping_request"
	case KindUDP:
		return "udp"
	case KindTCP:
		return "tcp"
	case KindIPOther:
		return "ip_other"
	default:
		return "invalid"
	}
}
