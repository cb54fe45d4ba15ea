package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HeaderPair is a single response header as it was written to the client.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderPairs keeps headers in write order so replays are byte-identical.
// It is stored as a JSON array; a nil slice is stored as NULL.
type HeaderPairs []HeaderPair

// Value implements driver.Valuer.
func (h HeaderPairs) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	b, err := json.Marshal([]HeaderPair(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (h *HeaderPairs) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("header pairs: unsupported source %T", src)
	}
	var out []HeaderPair
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*h = out
	return nil
}

// IdempotencyRecord is the saved response for one (user, key) pair.
//
// A row is first inserted as a placeholder with NULL response columns inside
// the transaction that performs the guarded work, then updated with the final
// response before that transaction commits. Rows are never deleted here;
// retention is handled outside the application.
type IdempotencyRecord struct {
	UserID             string      `gorm:"type:varchar(64);primaryKey"`
	IdempotencyKey     string      `gorm:"type:varchar(256);primaryKey"`
	ResponseStatusCode *int        `gorm:"type:integer"`
	ResponseHeaders    HeaderPairs `gorm:"type:text"`
	ResponseBody       []byte
	CreatedAt          time.Time `gorm:"not null;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency" }

// Completed reports whether the saved response has been written.
func (r IdempotencyRecord) Completed() bool {
	return r.ResponseStatusCode != nil
}
