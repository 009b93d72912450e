package kpireward

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

const digestPayloadLength = solana.PublicKeyLength + 8 + 1 + 8

// KpiDigest computes keccak256(founder || amount LE || kpiType || timestamp LE).
// The layout matches what the off-chain authority signs and must not change.
func KpiDigest(founder solana.PublicKey, amount uint64, kpiType uint8, timestamp int64) Digest {
	buf := make([]byte, 0, digestPayloadLength)
	buf = append(buf, founder[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	buf = append(buf, kpiType)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestamp))
	return Digest(ethcrypto.Keccak256Hash(buf))
}
