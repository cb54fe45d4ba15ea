package domain

import (
	"fmt"
	"reflect"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Placeholder_ThenSaved(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&IdempotencyRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	ins := func() int64 {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&IdempotencyRecord{UserID: "u1", IdempotencyKey: "k1"})
		if res.Error != nil {
			t.Fatalf("insert placeholder: %v", res.Error)
		}
		return res.RowsAffected
	}
	if n := ins(); n != 1 {
		t.Fatalf("first placeholder insert affected %d rows; want 1", n)
	}
	if n := ins(); n != 0 {
		t.Fatalf("duplicate placeholder insert affected %d rows; want 0", n)
	}

	var got IdempotencyRecord
	if err := db.First(&got, "user_id = ? AND idempotency_key = ?", "u1", "k1").Error; err != nil {
		t.Fatalf("read placeholder: %v", err)
	}
	if got.Completed() || got.ResponseBody != nil || got.ResponseHeaders != nil {
		t.Fatalf("placeholder must have NULL response columns, got %+v", got)
	}

	status := 202
	hdrs := HeaderPairs{{Name: "Location", Value: "/x"}, {Name: "Content-Type", Value: "application/json"}}
	if err := db.Model(&IdempotencyRecord{}).
		Where("user_id = ? AND idempotency_key = ?", "u1", "k1").
		Updates(&IdempotencyRecord{ResponseStatusCode: &status, ResponseHeaders: hdrs, ResponseBody: []byte(`{"a":1}`)}).Error; err != nil {
		t.Fatalf("save response: %v", err)
	}

	got = IdempotencyRecord{}
	if err := db.First(&got, "user_id = ? AND idempotency_key = ?", "u1", "k1").Error; err != nil {
		t.Fatalf("read saved: %v", err)
	}
	if !got.Completed() || *got.ResponseStatusCode != 202 {
		t.Fatalf("status not saved: %+v", got)
	}
	if !reflect.DeepEqual(got.ResponseHeaders, hdrs) {
		t.Fatalf("headers must keep write order: got %#v want %#v", got.ResponseHeaders, hdrs)
	}
	if string(got.ResponseBody) != `{"a":1}` {
		t.Fatalf("body mismatch: %q", got.ResponseBody)
	}
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&IdempotencyRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for _, u := range []string{"alice", "bob"} {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&IdempotencyRecord{UserID: u, IdempotencyKey: "same"})
		if res.Error != nil || res.RowsAffected != 1 {
			t.Fatalf("insert for %s: rows=%d err=%v", u, res.RowsAffected, res.Error)
		}
	}
}

func TestIdempotencyRecord_TableName(t *testing.T) {
	if (IdempotencyRecord{}).TableName() != "idempotency" {
		t.Fatalf("TableName() = %q", (IdempotencyRecord{}).TableName())
	}
}
