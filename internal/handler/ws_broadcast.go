package handler

// BroadcastRoomEvent implements service.Broadcaster.
func (h *Hub) BroadcastRoomEvent(roomID string, eventType string, data any) {
	h.BroadcastToRoom(roomID, WSEvent{Type: eventType, RoomID: roomID, Data: data})
}

// SendRoomEvent implements service.Broadcaster.
func (h *Hub) SendRoomEvent(roomID, userID string, eventType string, data any) {
	h.SendToUser(roomID, userID, WSEvent{Type: eventType, RoomID: roomID, Data: data})
}
