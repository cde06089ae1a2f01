// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrHubBusy      = errors.New("websocket hub busy")
)
