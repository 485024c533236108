package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeIdentity は認証基盤のアカウントを表す。集約IDはメールアドレス。
	AggregateTypeIdentity AggregateType = "Identity"
	// AggregateTypeMenuItem はメニュー品目を表す。
	AggregateTypeMenuItem AggregateType = "MenuItem"
	// AggregateTypeOrder は注文を表す。
	AggregateTypeOrder AggregateType = "Order"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeIdentityRegistered はアカウントが登録されたことを表す。
	TypeIdentityRegistered Type = "IdentityRegistered"
	// TypePasswordChanged はパスワードが変更され、既存トークンが失効したことを表す。
	TypePasswordChanged Type = "PasswordChanged"
	// TypeRoleChanged はアカウントのロールが変更されたことを表す。
	TypeRoleChanged Type = "RoleChanged"

	// TypeMenuItemCreated はメニュー品目が作成されたことを表す。
	TypeMenuItemCreated Type = "MenuItemCreated"

	// TypeOrderPlaced は注文が作成されたことを表す。
	TypeOrderPlaced Type = "OrderPlaced"
	// TypeOrderStatusChanged は注文ステータスが変更されたことを表す。
	TypeOrderStatusChanged Type = "OrderStatusChanged"
)

// Event はEvent Storeに永続化される不変の監査イベントを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// IdentityRegisteredData はIdentityRegisteredイベントのデータ。
type IdentityRegisteredData struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// PasswordChangedData はPasswordChangedイベントのデータ。
type PasswordChangedData struct {
	// ModifiedAt はパスワード変更時刻。これより前に発行されたトークンは失効する。
	ModifiedAt time.Time `json:"modified_at"`
}

// RoleChangedData はRoleChangedイベントのデータ。
type RoleChangedData struct {
	From      string `json:"from"`
	To        string `json:"to"`
	ChangedBy string `json:"changed_by"`
}

// MenuItemCreatedData はMenuItemCreatedイベントのデータ。
type MenuItemCreatedData struct {
	Name       string `json:"name"`
	CategoryID int64  `json:"category_id"`
	PriceCents int64  `json:"price_cents"`
	CreatedBy  string `json:"created_by"`
}

// OrderPlacedData はOrderPlacedイベントのデータ。
type OrderPlacedData struct {
	// PlacedBy は注文したユーザーのメールアドレス。
	PlacedBy   string `json:"placed_by"`
	TableID    int64  `json:"table_id"`
	TotalCents int64  `json:"total_cents"`
	ItemCount  int    `json:"item_count"`
}

// OrderStatusChangedData はOrderStatusChangedイベントのデータ。
type OrderStatusChangedData struct {
	From      string `json:"from"`
	To        string `json:"to"`
	ChangedBy string `json:"changed_by"`
}
