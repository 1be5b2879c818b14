package models

import "time"

// Pass records a successful claim. At most one row exists per
// (event, wallet) pair; the primary key in the passes table is the only
// serialization point for concurrent claims.
type Pass struct {
	EventID      string
	WalletPubkey string
	MintedAsset  string
	UserEmail    string
	CreatedAt    time.Time
}
