package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCommand is returned by ParseLine for lines it cannot map.
var ErrUnknownCommand = errors.New("unknown command")

// ParseLine translates one console line into a control method and its
// params. Keywords are case-insensitive; topics and data keep their case.
//
//	REBOOT
//	STATUS
//	CONNECT [MQTT]
//	DISCONNECT
//	SET IP|MQTT|MASK|GW a b c d
//	SET IP|MQTT|MASK|GW a.b.c.d
//	SUBSCRIBE topic
//	UNSUBSCRIBE topic
//	PUBLISH topic data...
func ParseLine(line string) (method string, params interface{}, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, ErrUnknownCommand
	}

	switch verb := strings.ToUpper(fields[0]); verb {
	case "REBOOT":
		return MethodNodeReset, nil, nil
	case "STATUS":
		return MethodNodeStatus, nil, nil
	case "CONNECT":
		if len(fields) > 1 && strings.EqualFold(fields[1], "MQTT") {
			return MethodMQTTConnect, nil, nil
		}
		return MethodNodeConnect, nil, nil
	case "DISCONNECT":
		return MethodMQTTDisconnect, nil, nil
	case "SET":
		return parseSet(fields[1:])
	case "SUBSCRIBE", "UNSUBSCRIBE":
		if len(fields) < 2 {
			return "", nil, fmt.Errorf("%s needs a topic", verb)
		}
		method = MethodMQTTSubscribe
		if verb == "UNSUBSCRIBE" {
			method = MethodMQTTUnsubscribe
		}
		return method, TopicParams{Topic: fields[1]}, nil
	case "PUBLISH":
		if len(fields) < 2 {
			return "", nil, errors.New("PUBLISH needs a topic")
		}
		return MethodMQTTPublish, PublishParams{Topic: fields[1], Data: rest(line, 2)}, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
}

func parseSet(args []string) (string, interface{}, error) {
	if len(args) < 2 {
		return "", nil, errors.New("SET needs a target and an address")
	}

	var field string
	switch strings.ToUpper(args[0]) {
	case "IP":
		field = FieldIP
	case "MQTT":
		field = FieldBroker
	case "MASK", "SN":
		field = FieldMask
	case "GW":
		field = FieldGateway
	default:
		return "", nil, fmt.Errorf("%w: SET %s", ErrUnknownCommand, args[0])
	}

	octets := args[1:]
	if len(octets) == 1 {
		octets = strings.Split(octets[0], ".")
	}
	if len(octets) != 4 {
		return "", nil, fmt.Errorf("SET %s needs four octets", args[0])
	}
	normalized := make([]string, len(octets))
	for i, o := range octets {
		v, err := strconv.Atoi(o)
		if err != nil || v < 0 || v > 255 {
			return "", nil, fmt.Errorf("invalid octet %q", o)
		}
		normalized[i] = strconv.Itoa(v)
	}
	return MethodNodeSet, SetParams{Field: field, Value: strings.Join(normalized, ".")}, nil
}

// rest returns line after its first n fields, inner spacing preserved.
func rest(line string, n int) string {
	s := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		idx := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
		if idx < 0 {
			return ""
		}
		s = strings.TrimLeft(s[idx:], " \t")
	}
	return s
}
