package menu

import (
	"errors"
	"time"
)

var (
	// ErrNotFound は対象のカテゴリまたはメニュー品目が存在しないことを表す。
	ErrNotFound = errors.New("not found")
	// ErrCategoryNameTaken はカテゴリ名が既に使われていることを表す。
	ErrCategoryNameTaken = errors.New("category name already exists")
	// ErrCategoryNotFound はメニュー品目の所属先カテゴリが存在しないことを表す。
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryInUse はメニュー品目が属しているカテゴリを削除しようとしたことを表す。
	ErrCategoryInUse = errors.New("category has menu items")
)

// Category はメニューのカテゴリ。
type Category struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Item はメニュー品目。価格は最小通貨単位の整数で持つ。
type Item struct {
	ID          int64
	CategoryID  int64
	Name        string
	Description string
	PriceCents  int64
	Available   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
