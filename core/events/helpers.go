package events

import (
	"encoding/hex"
	"strings"
)

func normalizeToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func hexDigest(digest [32]byte) string {
	return "0x" + hex.EncodeToString(digest[:])
}
