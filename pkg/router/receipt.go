package router

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// Receipt summarizes one committed execute call. The content hash covers the
// canonical JSON of every other field, so a receipt can be checked against
// the run ledger entry that recorded it.
type Receipt struct {
	CallID      string    `json:"call_id"`
	Caller      string    `json:"caller"`
	Status      string    `json:"status"`
	ActionsRun  int       `json:"actions_run"`
	Supplied    uint64    `json:"supplied"`
	Used        uint64    `json:"used"`
	Refunded    uint64    `json:"refunded"`
	Timestamp   time.Time `json:"timestamp"`
	ContentHash string    `json:"content_hash"`
}

func newReceipt(callID, caller string, actionsRun int, supplied, used, refunded uint64, ts time.Time) (*Receipt, error) {
	r := &Receipt{
		CallID:     callID,
		Caller:     caller,
		Status:     "SUCCESS",
		ActionsRun: actionsRun,
		Supplied:   supplied,
		Used:       used,
		Refunded:   refunded,
		Timestamp:  ts.UTC(),
	}
	hash, err := r.hash()
	if err != nil {
		return nil, err
	}
	r.ContentHash = hash
	return r, nil
}

// Verify recomputes the content hash and reports whether it matches.
func (r *Receipt) Verify() (bool, error) {
	hash, err := r.hash()
	if err != nil {
		return false, err
	}
	return hash == r.ContentHash, nil
}

func (r *Receipt) hash() (string, error) {
	shadow := *r
	shadow.ContentHash = ""
	raw, err := json.Marshal(shadow)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize receipt: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
