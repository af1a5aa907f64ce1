package session

// State is a step of connection establishment.
type State int

const (
	StateIdle State = iota
	StateSendARPRequest
	StateWaitARPResponse
	StateSendTCPSyn
	StateWaitTCPSynAck
	StateSendTCPAck
	StateTCPConnectionActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSendARPRequest:
		return "SendArpRequest"
	case StateWaitARPResponse:
		return "WaitArpResponse"
	case StateSendTCPSyn:
		return "SendTcpSyn"
	case StateWaitTCPSynAck:
		return "WaitTcpSynAck"
	case StateSendTCPAck:
		return "SendTcpAck"
	case StateTCPConnectionActive:
		return "TcpConnectionActive"
	default:
		return "Invalid"
	}
}

// IsWaiting reports whether the state is parked on a reply from the peer.
func (s State) IsWaiting() bool {
	return s == StateWaitARPResponse || s == StateWaitTCPSynAck
}

// IsConnecting reports whether establishment has started but not finished.
func (s State) IsConnecting() bool {
	return s > StateIdle && s < StateTCPConnectionActive
}
