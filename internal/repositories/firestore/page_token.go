package firestore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// encodeJSONPageToken serialises a cursor struct into an opaque page token.
func encodeJSONPageToken(token any) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

// decodeJSONPageToken hydrates a cursor struct from an opaque page token.
func decodeJSONPageToken(encoded string, target any) error {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode page token: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode page token json: %w", err)
	}
	return nil
}
