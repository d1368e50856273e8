package websocket

// answers client keepalives
func PingHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		pong, err := NewMessage(TypePong, client.SessionID, nil)
		if err != nil {
			return err
		}
		return client.Send(pong)
	}
}
