package snapshots

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Checksum hashes a raw corpus payload after normalizing representational noise:
// a leading byte-order mark, CRLF line endings and non-NFC Unicode forms do not
// change the checksum.
func Checksum(raw []byte) string {
	sum := sha256.Sum256(norm.NFC.Bytes(stripFraming(raw)))
	return hex.EncodeToString(sum[:])
}

// stripFraming drops the byte-order mark and CRLF line endings. Characters are left
// untouched: NFC would fold CJK compatibility ideographs into their unified forms.
func stripFraming(raw []byte) []byte {
	trimmed := bytes.TrimPrefix(raw, utf8BOM)
	return bytes.ReplaceAll(trimmed, []byte("\r\n"), []byte("\n"))
}
