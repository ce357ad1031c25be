package ws

import (
	"crypto/sha1" // #nosec G505 - SHA-1 требуется RFC 6455
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

const (
	websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	nonceSize     = 16
)

// AcceptKey вычисляет значение Sec-WebSocket-Accept для клиентского nonce.
func AcceptKey(nonce string) string {
	h := sha1.New() // #nosec G401
	h.Write([]byte(nonce))
	h.Write([]byte(websocketGUID))

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// HandshakeHeaders строит заголовки ответа 101 Switching Protocols.
// Nonce подменять нельзя: без корректного Sec-WebSocket-Key возвращается ErrInvalidHandshake.
func HandshakeHeaders(req http.Header) (http.Header, error) {
	nonce := strings.TrimSpace(req.Get("Sec-WebSocket-Key"))
	if nonce == "" {
		return nil, fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrInvalidHandshake)
	}

	decoded, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil || len(decoded) != nonceSize {
		return nil, fmt.Errorf("%w: malformed Sec-WebSocket-Key %q", ErrInvalidHandshake, nonce)
	}

	headers := make(http.Header, 3)
	headers.Set("Upgrade", "websocket")
	headers.Set("Connection", "Upgrade")
	headers.Set("Sec-WebSocket-Accept", AcceptKey(nonce))

	return headers, nil
}

// transportHeaders отбрасывает заголовки, которые gorilla Upgrader пишет сам:
// повторный Sec-WebSocket-Accept браузеры считают ошибкой рукопожатия.
func transportHeaders(headers http.Header) http.Header {
	extra := headers.Clone()
	extra.Del("Upgrade")
	extra.Del("Connection")
	extra.Del("Sec-WebSocket-Accept")

	if len(extra) == 0 {
		return nil
	}

	return extra
}
