package pairing

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// RenderQR encodes a pairing approval hint as a QR code PNG so a node
// with a camera (or a human eyeballing a terminal) can scan its way
// through the approval command instead of retyping it.
func RenderQR(provider, code string) ([]byte, error) {
	payload := fmt.Sprintf("clawdbot pairing approve %s %s", provider, code)
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render pairing QR: %w", err)
	}
	return png, nil
}
