package command

import (
	"fmt"
	"io"
)

func onOff(b bool, on, off string) string {
	if b {
		return on
	}
	return off
}

// WriteStatus renders a node status the way the console shows it.
func WriteStatus(w io.Writer, s *StatusResult) {
	fmt.Fprintf(w, "HW:          %s\n", s.MAC)
	fmt.Fprintf(w, "IP:          %s\n", s.IP)
	fmt.Fprintf(w, "SN:          %s\n", s.SubnetMask)
	fmt.Fprintf(w, "GW:          %s\n", s.Gateway)
	fmt.Fprintf(w, "MQTT:        %s:%d\n", s.BrokerIP, s.BrokerPort)
	fmt.Fprintf(w, "Broker HW:   %s\n", s.BrokerMAC)
	fmt.Fprintf(w, "DHCP:        %s\n", onOff(s.DHCP, "on", "off"))
	fmt.Fprintf(w, "Link:        %s\n", onOff(s.LinkUp, "up", "down"))
	fmt.Fprintf(w, "State:       %s\n", s.State)
	fmt.Fprintf(w, "MQTT state:  %s\n", onOff(s.MQTTConnected, "connected", "disconnected"))
	fmt.Fprintf(w, "Indicator:   %s\n", onOff(s.Indicator, "on", "off"))
	fmt.Fprintf(w, "Seq/Ack:     %d/%d\n", s.Seq, s.Ack)
	fmt.Fprintf(w, "Frames:      rx %d, tx %d, dropped %d, overflows %d\n",
		s.Stats.Received, s.Stats.Transmitted, s.Stats.Dropped, s.Stats.Overflows)
	fmt.Fprintf(w, "Uptime:      %ds\n", s.UptimeSec)
	for _, n := range s.Neighbors {
		fmt.Fprintf(w, "Neighbor:    %s at %s\n", n.IP, n.MAC)
	}
}
