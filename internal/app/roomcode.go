package app

import (
	"crypto/rand"
	"math/big"
)

const (
	minRoomCodeWidth = 4
	maxRoomCodeWidth = 12
	// maxCodeAttempts bounds the collision retry loop.
	maxCodeAttempts = 16
)

// CodeGenerator returns a candidate room code of the given width.
type CodeGenerator func(width int) (string, error)

// RandomDigits draws a decimal code from crypto/rand.
func RandomDigits(width int) (string, error) {
	code := make([]byte, width)
	ten := big.NewInt(10)
	for i := range code {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

func clampCodeWidth(width int) int {
	return min(max(width, minRoomCodeWidth), maxRoomCodeWidth)
}

// codeSpace is the number of distinct codes of the given width.
func codeSpace(width int) int64 {
	space := int64(1)
	for i := 0; i < width; i++ {
		space *= 10
	}
	return space
}
