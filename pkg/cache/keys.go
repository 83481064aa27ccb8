package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keys are hierarchical: the patients scope contains list pages, detail
// entries and process results. List keys embed an epoch counter so a single
// atomic bump invalidates every cached page at once.
const (
	scopePatients = "patients"
	listEpochKey  = scopePatients + ":list:epoch"
)

func listKey(epoch int64, page int) string {
	return fmt.Sprintf("%s:list:%d:page:%d", scopePatients, epoch, page)
}

func detailKey(id string) string {
	return scopePatients + ":detail:" + id
}

func processKey(id string, payload interface{}) string {
	return scopePatients + ":process:" + id + ":" + payloadHash(payload)
}

// payloadHash content-addresses a process payload. Struct field order makes
// encoding/json deterministic, so identical inputs always hash alike and no
// two different inputs share a key.
func payloadHash(payload interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
