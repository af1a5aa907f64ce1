package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethmqtt/internal/command"
)

func TestSetRequest(t *testing.T) {
	tests := []struct {
		args  []string
		field string
		value string
	}{
		{[]string{"ip", "192.168.1.50"}, command.FieldIP, "192.168.1.50"},
		{[]string{"mqtt", "192", "168", "1", "9"}, command.FieldBroker, "192.168.1.9"},
		{[]string{"mask", "255.255.0.0"}, command.FieldMask, "255.255.0.0"},
		{[]string{"gw", "10.0.0.1"}, command.FieldGateway, "10.0.0.1"},
		{[]string{"broker-mac", "10:20:30:40:50:60"}, command.FieldBrokerMAC, "10:20:30:40:50:60"},
	}

	for _, tt := range tests {
		method, params, err := setRequest(tt.args)
		require.NoError(t, err, "args %v", tt.args)
		assert.Equal(t, command.MethodNodeSet, method)
		assert.Equal(t, command.SetParams{Field: tt.field, Value: tt.value}, params)
	}

	_, _, err := setRequest([]string{"dns", "1.1.1.1"})
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	for _, name := range []string{"daemon", "status", "set", "connect", "reboot", "mqtt", "stop", "validate", "console"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	sub, _, err := rootCmd.Find([]string{"mqtt", "publish"})
	require.NoError(t, err)
	assert.Equal(t, "publish", sub.Name())
}
