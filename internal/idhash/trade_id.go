// Package idhash derives deterministic identifiers for persisted records.
package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeTradeID computes a deterministic trade id for a settled contract.
// Formula: base58(SHA256(account|contract_id|transaction_id_buy)).
// The same settlement always maps to the same id, so duplicate deliveries
// collapse to one stored record.
func ComputeTradeID(account string, contractID, transactionIDBuy int64) string {
	data := fmt.Sprintf("%s|%d|%d", account, contractID, transactionIDBuy)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
