package marketplace

import "encoding/base64"

// DecodeTag decodes a tag as the marketplace transports it: base64 of a
// fixed-width, NUL-padded byte string. Trailing NULs are stripped.
func DecodeTag(wire string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return "", err
	}
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end]), nil
}

// EncodeTag pads tag with NUL bytes up to width (0 means no padding) and
// base64-encodes it, the inverse of DecodeTag.
func EncodeTag(tag string, width int) string {
	raw := []byte(tag)
	if width > len(raw) {
		padded := make([]byte, width)
		copy(padded, raw)
		raw = padded
	}
	return base64.StdEncoding.EncodeToString(raw)
}
