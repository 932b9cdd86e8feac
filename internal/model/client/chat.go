package client

// ChatPayload 发往其他Agent或房间的消息 {to, msg}
// 回复发送方使用 message 事件，转发使用 chat 事件，载荷结构相同
type ChatPayload struct {
	To  string `json:"to"`
	Msg string `json:"msg"`
}

// JoinRoomPayload 加入房间 {room}
type JoinRoomPayload struct {
	Room string `json:"room"`
}
