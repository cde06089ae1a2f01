// internal/websocket/utils.go
package websocket

import "encoding/json"

// mapToStruct decodes a loosely typed message payload into target.
func mapToStruct(data interface{}, target interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}
