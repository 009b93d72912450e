package bank

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func balanceKey(token string, account solana.PublicKey) []byte {
	return []byte(fmt.Sprintf("bank/%s/balance/%s", strings.ToLower(token), hex.EncodeToString(account[:])))
}

func supplyKey(token string) []byte {
	return []byte(fmt.Sprintf("bank/%s/supply", strings.ToLower(token)))
}
