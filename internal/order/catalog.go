package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/restaurant/pkg/httpclient"
)

var (
	// ErrMenuItemNotFound は注文されたメニュー品目が存在しないことを表す。
	ErrMenuItemNotFound = errors.New("menu item not found")
	// ErrMenuUnavailable はメニューサービスに問い合わせできないことを表す。
	ErrMenuUnavailable = errors.New("menu service unavailable")
)

// MenuItem は注文時に参照するメニュー品目の情報。
type MenuItem struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Available  bool   `json:"available"`
}

// Catalog はメニュー品目を参照する。
type Catalog interface {
	// MenuItem はメニュー品目を返す。存在しない場合は ErrMenuItemNotFound を返す。
	MenuItem(ctx context.Context, id int64) (MenuItem, error)
}

// HTTPCatalog はメニューサービスのHTTP APIを使う Catalog。
// メニューサービスは信頼済みヘッダーで認可するため、呼び出し元の
// httpclient.WithIdentity で設定した本人情報がそのまま伝播される。
type HTTPCatalog struct {
	client *httpclient.Client
}

// NewHTTPCatalog は HTTPCatalog を生成する。
func NewHTTPCatalog(client *httpclient.Client) *HTTPCatalog {
	return &HTTPCatalog{client: client}
}

// MenuItem は GET /api/menu-items/:id を呼び出す。
func (c *HTTPCatalog) MenuItem(ctx context.Context, id int64) (MenuItem, error) {
	var item MenuItem
	err := c.client.GetJSON(ctx, fmt.Sprintf("/api/menu-items/%d", id), &item)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return MenuItem{}, ErrMenuItemNotFound
		}
		return MenuItem{}, fmt.Errorf("%w: %w", ErrMenuUnavailable, err)
	}
	return item, nil
}
