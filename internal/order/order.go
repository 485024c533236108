package order

import (
	"errors"
	"time"
)

var (
	// ErrNotFound は対象のテーブルまたは注文が存在しないことを表す。
	ErrNotFound = errors.New("not found")
	// ErrTableNameTaken はテーブル名が既に使われていることを表す。
	ErrTableNameTaken = errors.New("table name already exists")
	// ErrTableNotFound は注文先のテーブルが存在しないことを表す。
	ErrTableNotFound = errors.New("table not found")
	// ErrTableInUse は注文が残っているテーブルを削除しようとしたことを表す。
	ErrTableInUse = errors.New("table has orders")
	// ErrStatusConflict は現在のステータスから遷移できないことを表す。
	ErrStatusConflict = errors.New("status transition not allowed")
)

// Status は注文ステータス。
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPreparing Status = "PREPARING"
	StatusServed    Status = "SERVED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// transitions は各ステータスから遷移できるステータス。
var transitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusServed, StatusCancelled},
	StatusServed:    {StatusPaid},
}

// ParseStatus はステータス名を解釈する。
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusPreparing, StatusServed, StatusPaid, StatusCancelled:
		return st, true
	}
	return "", false
}

// CanTransition は from から to へ遷移できるかを返す。
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Table は店内のテーブル。
type Table struct {
	ID        int64
	Name      string
	Seats     int
	CreatedAt time.Time
}

// Line は注文明細。価格は注文時点のメニュー価格。
type Line struct {
	MenuItemID     int64
	Name           string
	UnitPriceCents int64
	Quantity       int
}

// Order は注文。PlacedBy は注文したユーザーのメールアドレス。
type Order struct {
	ID         string
	TableID    int64
	PlacedBy   string
	Status     Status
	TotalCents int64
	Lines      []Line
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
