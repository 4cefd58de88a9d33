package images

import (
	"crypto/sha256"
	"encoding/hex"

	"gocv.io/x/gocv"
)

// MatChecksum returns a hex digest of the pixel data of mat, or "empty" for an empty Mat. Two
// Mats with the same size, type and pixels have the same checksum.
func MatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	h := sha256.New()
	h.Write([]byte{byte(mat.Type()), byte(mat.Channels())})
	h.Write(mat.ToBytes())
	return hex.EncodeToString(h.Sum(nil))
}
