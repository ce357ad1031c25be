package ws

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// Opcode - замкнутое перечисление видов кадров, которые ядро получает от транспорта.
type Opcode uint8

const (
	OpText Opcode = iota + 1
	OpBinary
	OpClose
	OpPing
	OpPong
)

func (o Opcode) String() string {
	switch o {
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

func (o Opcode) IsControl() bool {
	return o == OpClose || o == OpPing || o == OpPong
}

type Frame struct {
	Opcode  Opcode
	Payload []byte
}

func TextFrame(text string) Frame {
	return Frame{Opcode: OpText, Payload: []byte(text)}
}

func BinaryFrame(data []byte) Frame {
	return Frame{Opcode: OpBinary, Payload: data}
}

func PingFrame(data []byte) Frame {
	return Frame{Opcode: OpPing, Payload: data}
}

func PongFrame(data []byte) Frame {
	return Frame{Opcode: OpPong, Payload: data}
}

func CloseFrame(code int, reason string) Frame {
	return Frame{Opcode: OpClose, Payload: websocket.FormatCloseMessage(code, reason)}
}

// messageType переводит opcode в тип сообщения gorilla/websocket.
func (o Opcode) messageType() (int, error) {
	switch o {
	case OpText:
		return websocket.TextMessage, nil
	case OpBinary:
		return websocket.BinaryMessage, nil
	case OpClose:
		return websocket.CloseMessage, nil
	case OpPing:
		return websocket.PingMessage, nil
	case OpPong:
		return websocket.PongMessage, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownOpcode, uint8(o))
	}
}

func opcodeFromMessageType(mt int) (Opcode, error) {
	switch mt {
	case websocket.TextMessage:
		return OpText, nil
	case websocket.BinaryMessage:
		return OpBinary, nil
	case websocket.CloseMessage:
		return OpClose, nil
	case websocket.PingMessage:
		return OpPing, nil
	case websocket.PongMessage:
		return OpPong, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownOpcode, mt)
	}
}
