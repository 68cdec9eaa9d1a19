package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from    State
		event   Event
		to      State
		effects []Effect
	}{
		{StateDisconnected, EventConnect, StateConnecting, []Effect{EffectDial}},
		{StateConnecting, EventOpened, StateConnected, []Effect{EffectAttach}},
		{StateConnecting, EventFailed, StateReconnecting, []Effect{EffectScheduleRetry}},
		{StateConnected, EventDropped, StateReconnecting, []Effect{EffectClose, EffectScheduleRetry}},
		{StateReconnecting, EventRetryDue, StateConnecting, []Effect{EffectDial}},
		{StateReconnecting, EventDisconnect, StateDisconnected, []Effect{EffectCancelRetry}},
		{StateConnected, EventDisconnect, StateDisconnected, []Effect{EffectClose}},
		{StateConnecting, EventDisconnect, StateDisconnected, []Effect{EffectClose}},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.event), func(t *testing.T) {
			tr, ok := Next(tc.from, tc.event)
			assert.True(t, ok)
			assert.Equal(t, tc.to, tr.To)
			assert.Equal(t, tc.effects, tr.Effects)
		})
	}
}

func TestConnectIsNoOpOutsideDisconnected(t *testing.T) {
	for _, s := range []State{StateConnecting, StateConnected, StateReconnecting} {
		tr, ok := Next(s, EventConnect)
		assert.True(t, ok, s)
		assert.Equal(t, s, tr.To)
		assert.Empty(t, tr.Effects)
	}
}

func TestIgnoredEvents(t *testing.T) {
	ignored := []key{
		{StateDisconnected, EventOpened},
		{StateDisconnected, EventDropped},
		{StateDisconnected, EventRetryDue},
		{StateDisconnected, EventFailed},
		{StateConnected, EventOpened},
		{StateConnected, EventRetryDue},
		{StateReconnecting, EventDropped},
		{StateReconnecting, EventOpened},
		{StateConnecting, EventDropped},
	}
	for _, k := range ignored {
		_, ok := Next(k.from, k.event)
		assert.False(t, ok, "%s/%s should be ignored", k.from, k.event)
	}
}
