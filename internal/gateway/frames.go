package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// SplitFrames splits a websocket message into socket.io frames. Multiple
// frames arrive separated by RS (0x1e).
func SplitFrames(msg []byte) [][]byte {
	if bytes.IndexByte(msg, 0x1e) < 0 {
		return [][]byte{msg}
	}
	parts := bytes.Split(msg, []byte{0x1e})
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// EmitFrame encodes an event emit as a socket.io "42" frame.
func EmitFrame(event string, payload any) (string, error) {
	frame, err := json.Marshal([]any{event, payload})
	if err != nil {
		return "", err
	}
	return "42" + string(frame), nil
}

// DecodeEventPayload unpacks a `42["EVENT",{...}]` body into its name and
// raw payload. ok=false means the frame carried nothing dispatchable.
func DecodeEventPayload(raw []byte) (eventName string, payload json.RawMessage, ok bool, err error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return "", nil, false, err
	}
	if len(arr) == 0 {
		return "", nil, false, nil
	}
	if err := json.Unmarshal(arr[0], &eventName); err != nil {
		return "", nil, false, err
	}
	if strings.TrimSpace(eventName) == "" {
		return "", nil, false, nil
	}
	if len(arr) < 2 {
		return eventName, nil, true, nil
	}
	return eventName, arr[1], true, nil
}

// WebsocketURL derives the socket.io websocket endpoint from the platform
// base URL (typically `${MEW_URL}` with the API served under /api).
func WebsocketURL(baseURL string) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("empty base url")
	}
	baseURL = strings.TrimRight(strings.TrimSuffix(baseURL, "/api"), "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid scheme: %q", u.Scheme)
	}

	u.Path = "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
