package connection

// State represents the health of the chat channel.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
)

// Event is an input to the connection state machine.
type Event string

const (
	EventConnect    Event = "connect"
	EventOpened     Event = "opened"
	EventFailed     Event = "failed"
	EventDropped    Event = "dropped"
	EventRetryDue   Event = "retry_due"
	EventDisconnect Event = "disconnect"
)

// Effect is a side effect the manager performs after a transition.
type Effect string

const (
	// EffectDial opens a new channel asynchronously.
	EffectDial Effect = "dial"
	// EffectAttach adopts a freshly opened channel and starts its read loop.
	EffectAttach Effect = "attach"
	// EffectClose releases the current channel or aborts a pending dial.
	EffectClose Effect = "close"
	// EffectScheduleRetry arms the reconnect timer.
	EffectScheduleRetry Effect = "schedule_retry"
	// EffectCancelRetry disarms the reconnect timer.
	EffectCancelRetry Effect = "cancel_retry"
)

// Transition is the result of applying an event to a state.
type Transition struct {
	To      State
	Effects []Effect
}

type key struct {
	from  State
	event Event
}

// transitions is the complete table. Pairs that are absent are ignored,
// which covers stale events such as a drop reported after Disconnect.
var transitions = map[key]Transition{
	{StateDisconnected, EventConnect}:    {To: StateConnecting, Effects: []Effect{EffectDial}},
	{StateDisconnected, EventDisconnect}: {To: StateDisconnected},

	{StateConnecting, EventConnect}:    {To: StateConnecting},
	{StateConnecting, EventOpened}:     {To: StateConnected, Effects: []Effect{EffectAttach}},
	{StateConnecting, EventFailed}:     {To: StateReconnecting, Effects: []Effect{EffectScheduleRetry}},
	{StateConnecting, EventDisconnect}: {To: StateDisconnected, Effects: []Effect{EffectClose}},

	{StateConnected, EventConnect}:    {To: StateConnected},
	{StateConnected, EventDropped}:    {To: StateReconnecting, Effects: []Effect{EffectClose, EffectScheduleRetry}},
	{StateConnected, EventDisconnect}: {To: StateDisconnected, Effects: []Effect{EffectClose}},

	{StateReconnecting, EventConnect}:    {To: StateReconnecting},
	{StateReconnecting, EventRetryDue}:   {To: StateConnecting, Effects: []Effect{EffectDial}},
	{StateReconnecting, EventDisconnect}: {To: StateDisconnected, Effects: []Effect{EffectCancelRetry}},
}

// Next returns the transition for event in state. The boolean is false when
// the event has no meaning in that state and must be ignored.
func Next(from State, event Event) (Transition, bool) {
	t, ok := transitions[key{from, event}]
	return t, ok
}
