package order

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/event"
	"github.com/nao1215/restaurant/pkg/httpclient"
)

const (
	// maxLines は1注文あたりの明細数の上限。
	maxLines = 50
	// maxQuantity は1明細あたりの数量の上限。
	maxQuantity = 99
)

// Actor はgatewayが認証したリクエストの主体。
type Actor struct {
	Email string
	Role  authz.Role
}

// canSeeAll は他人の注文を参照できるかを返す。
func (a Actor) canSeeAll() bool {
	return a.Role == authz.RoleSupervisor || a.Role == authz.RoleAdmin
}

// LineRequest は注文明細の指定。
type LineRequest struct {
	MenuItemID int64
	Quantity   int
}

// Service は注文の操作を提供する。
type Service struct {
	store   Store
	catalog Catalog
	events  event.Emitter
	now     func() time.Time
}

// NewService は Service を生成する。
func NewService(store Store, catalog Catalog, events event.Emitter) *Service {
	return &Service{store: store, catalog: catalog, events: events, now: time.Now}
}

// PlaceOrder はメニューの現在価格で注文を作成し、OrderPlaced イベントを記録する。
func (s *Service) PlaceOrder(ctx context.Context, actor Actor, tableID int64, reqs []LineRequest) (Order, error) {
	if len(reqs) == 0 || len(reqs) > maxLines {
		return Order{}, apierror.Newf(apierror.KindBadRequest, "明細は1件以上%d件以下で指定してください", maxLines)
	}

	// メニューサービスにも呼び出し元の本人情報を伝える
	ctx = httpclient.WithIdentity(ctx, actor.Email, string(actor.Role))

	lines := make([]Line, 0, len(reqs))
	var total int64
	for _, r := range reqs {
		if r.Quantity <= 0 || r.Quantity > maxQuantity {
			return Order{}, apierror.Newf(apierror.KindBadRequest, "数量は1以上%d以下で指定してください", maxQuantity)
		}
		item, err := s.catalog.MenuItem(ctx, r.MenuItemID)
		if err != nil {
			if errors.Is(err, ErrMenuItemNotFound) {
				return Order{}, apierror.Newf(apierror.KindBadRequest, "メニュー品目 %d は存在しません", r.MenuItemID)
			}
			slog.WarnContext(ctx, "メニュー品目の取得に失敗", "menu_item_id", r.MenuItemID, "error", err)
			return Order{}, apierror.New(apierror.KindUpstreamUnavailable, "メニューサービスに問い合わせできません")
		}
		if !item.Available {
			return Order{}, apierror.Newf(apierror.KindBadRequest, "メニュー品目 %s は現在提供していません", item.Name)
		}
		lines = append(lines, Line{
			MenuItemID:     item.ID,
			Name:           item.Name,
			UnitPriceCents: item.PriceCents,
			Quantity:       r.Quantity,
		})
		total += item.PriceCents * int64(r.Quantity)
	}

	now := s.now().UTC()
	o := Order{
		ID:         uuid.NewString(),
		TableID:    tableID,
		PlacedBy:   actor.Email,
		Status:     StatusPending,
		TotalCents: total,
		Lines:      lines,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return Order{}, apierror.New(apierror.KindBadRequest, "指定されたテーブルが存在しません")
		}
		return Order{}, err
	}

	event.Record(ctx, s.events, o.ID, event.AggregateTypeOrder, event.TypeOrderPlaced, event.OrderPlacedData{
		PlacedBy:   o.PlacedBy,
		TableID:    o.TableID,
		TotalCents: o.TotalCents,
		ItemCount:  len(o.Lines),
	})
	return o, nil
}

// Orders はUSERには自分の注文、SUPERVISORとADMINには全員の注文を返す。
func (s *Service) Orders(ctx context.Context, actor Actor, status Status) ([]Order, error) {
	placedBy := actor.Email
	if actor.canSeeAll() {
		placedBy = ""
	}
	return s.store.ListOrders(ctx, placedBy, status)
}

// Order は注文を返す。USERが他人の注文を指定した場合は存在しないものとして扱う。
func (s *Service) Order(ctx context.Context, actor Actor, id string) (Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && !actor.canSeeAll() && o.PlacedBy != actor.Email) {
		return Order{}, apierror.New(apierror.KindNotFound, "注文が見つかりません")
	}
	return o, err
}

// ChangeStatus は注文ステータスを変更し、OrderStatusChanged イベントを記録する。
func (s *Service) ChangeStatus(ctx context.Context, actor Actor, id string, to Status) (Order, error) {
	current, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Order{}, apierror.New(apierror.KindNotFound, "注文が見つかりません")
	}
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(current.Status, to) {
		return Order{}, apierror.Newf(apierror.KindConflict, "%s から %s には変更できません", current.Status, to)
	}

	updated, err := s.store.UpdateStatus(ctx, id, current.Status, to, s.now().UTC())
	if errors.Is(err, ErrStatusConflict) {
		return Order{}, apierror.New(apierror.KindConflict, "注文ステータスが同時に変更されました")
	}
	if err != nil {
		return Order{}, err
	}

	event.Record(ctx, s.events, id, event.AggregateTypeOrder, event.TypeOrderStatusChanged, event.OrderStatusChangedData{
		From:      string(current.Status),
		To:        string(to),
		ChangedBy: actor.Email,
	})
	return updated, nil
}
