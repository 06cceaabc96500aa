package decompv1connect

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// codecNameJSON matches the name connect uses for its built-in JSON codec,
// so registering Codec replaces it on both clients and handlers.
const codecNameJSON = "json"

// Codec marshals the plain decompv1 message structs as JSON.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string { return codecNameJSON }

// Marshal implements connect.Codec.
func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		// Connect sends an empty body for messages with no fields set.
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
