package qr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// EncodePNG renders content as a QR code and returns it as a base64-encoded
// PNG, ready for embedding in a JSON response.
func EncodePNG(content string) (string, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, 256, 256)
	if err != nil {
		return "", fmt.Errorf("failed to scale qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", fmt.Errorf("failed to render png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
