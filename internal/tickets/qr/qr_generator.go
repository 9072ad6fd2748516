package qr

import (
	"encoding/base64"

	"ms-boxoffice/internal/tickets"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

type QRGenerator struct {
	signer *tickets.Signer
	size   int
}

func NewQRGenerator(signer *tickets.Signer) *QRGenerator {
	return &QRGenerator{signer: signer, size: defaultSize}
}

// Content is the exact string encoded for a unit.
func (q *QRGenerator) Content(p tickets.Payload) string {
	return q.signer.Encode(p)
}

func (q *QRGenerator) PNG(p tickets.Payload) ([]byte, error) {
	return qrcode.Encode(q.Content(p), qrcode.Medium, q.size)
}

// DataURI renders the PNG inline for the browser receipt view.
func (q *QRGenerator) DataURI(p tickets.Payload) (string, error) {
	png, err := q.PNG(p)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
