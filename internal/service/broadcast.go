package service

// Broadcaster pushes room events to connected players. Implemented by the
// websocket hub.
type Broadcaster interface {
	// BroadcastRoomEvent reaches every subscriber of the room.
	BroadcastRoomEvent(roomID string, eventType string, data any)
	// SendRoomEvent reaches only the given user's subscriptions to the room,
	// for data other nations must not see.
	SendRoomEvent(roomID, userID string, eventType string, data any)
}

// NoopBroadcaster drops every event.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastRoomEvent(string, string, any) {}

func (NoopBroadcaster) SendRoomEvent(string, string, string, any) {}
