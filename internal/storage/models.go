package storage

import "time"

// Install is one package manager invocation recorded in the ledger.
// The interpreter environment keeps every successful install for the
// process lifetime, so the ledger is the only record of how it changed.
type Install struct {
	ID         string    `json:"id" db:"id"`
	Package    string    `json:"package" db:"package"`
	OK         bool      `json:"ok" db:"ok"`
	Message    string    `json:"message" db:"message"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	RequestID  string    `json:"request_id,omitempty" db:"request_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// InstallFilter provides criteria for querying the ledger.
type InstallFilter struct {
	Package string
	OnlyOK  bool
	Limit   int
	Offset  int
}
