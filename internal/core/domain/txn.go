package domain

import (
	"encoding/hex"
	"strings"
)

// VMDataTransaction is an application-data transaction tagged with a VM id.
type VMDataTransaction struct {
	Hash               string `json:"hash"                db:"hash"`
	Sender             string `json:"sender"              db:"sender"`
	VMID               uint64 `json:"vmId"                db:"vm_id"`
	Nonce              uint64 `json:"nonce"               db:"nonce"`
	BlockNumber        uint64 `json:"blockNumber"         db:"block_number"`
	PositionInTheBlock int    `json:"positionInTheBlock"  db:"position_in_block"`
	Timestamp          uint64 `json:"timestamp"           db:"timestamp"`
	Fee                uint64 `json:"fee"                 db:"fee"`
	Size               int    `json:"size"                db:"size"`
	Data               string `json:"data"                db:"data"` // hex encoded
	Success            bool   `json:"success"             db:"success"`
	ErrorMessage       string `json:"errorMessage"        db:"error_message"`
}

// DecodeData returns the raw payload bytes.
func (t *VMDataTransaction) DecodeData() ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(t.Data, "0x"))
}
