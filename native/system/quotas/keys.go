package quotas

import (
	"fmt"
	"strings"
)

const quotasPrefix = "quotas"

func normaliseModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

func counterKey(module string, addr []byte) []byte {
	normalised := normaliseModule(module)
	return []byte(fmt.Sprintf("%s/%s/%x", quotasPrefix, normalised, addr))
}
