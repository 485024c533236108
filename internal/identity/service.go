package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/event"
	"github.com/nao1215/restaurant/pkg/token"
)

const (
	// minPasswordLength はパスワードの最小バイト数。
	minPasswordLength = 8
	// maxPasswordLength はbcryptが扱える最大バイト数。
	maxPasswordLength = 72
)

// msgInvalidCredentials はメールアドレス不明とパスワード不一致を区別しないメッセージ。
const msgInvalidCredentials = "メールアドレスまたはパスワードが正しくありません"

// Session は登録・ログイン・パスワード変更の結果として発行されたトークンとID。
type Session struct {
	Token    token.Token
	Identity Identity
}

// Service はIDのライフサイクル操作を提供する。
type Service struct {
	store  Store
	issuer *token.Issuer
	cost   int
	now    func() time.Time
	events event.Emitter
	// dummyHash は存在しないメールアドレスでのログイン時にも
	// bcryptの比較を行い、応答時間で存在を推測されないようにするためのハッシュ。
	dummyHash []byte
}

// ServiceOption はServiceの設定を変更する。
type ServiceOption func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithEmitter は監査イベントの送信先を設定する。
func WithEmitter(e event.Emitter) ServiceOption {
	return func(s *Service) {
		s.events = e
	}
}

// NewService は Service を生成する。
func NewService(store Store, issuer *token.Issuer, bcryptCost int, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		store:  store,
		issuer: issuer,
		cost:   bcryptCost,
		now:    time.Now,
		events: event.NopEmitter{},
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("ダミーハッシュの生成に失敗: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register は新しいIDをUSERロールで登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, email, password string) (Session, error) {
	return s.create(ctx, email, password, authz.RoleUser)
}

func (s *Service) create(ctx context.Context, email, password string, role authz.Role) (Session, error) {
	if err := validateEmail(email); err != nil {
		return Session{}, err
	}
	if err := validatePassword(password); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	id := Identity{
		ID:                 uuid.NewString(),
		Email:              email,
		PasswordHash:       string(hash),
		Role:               role,
		CreatedAt:          now,
		PasswordModifiedAt: now,
	}
	if err := s.store.Create(ctx, id); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return Session{}, apierror.New(apierror.KindConflict, "このメールアドレスは既に登録されています")
		}
		return Session{}, err
	}

	tok, err := s.issuer.IssueAt(email, now)
	if err != nil {
		return Session{}, fmt.Errorf("トークンの発行に失敗: %w", err)
	}

	event.Record(ctx, s.events, email, event.AggregateTypeIdentity, event.TypeIdentityRegistered,
		event.IdentityRegisteredData{Email: email, Role: string(role)})
	return Session{Token: tok, Identity: id}, nil
}

// Login はパスワードを照合してトークンを発行する。
// メールアドレスが無い場合とパスワードが違う場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	id, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Session{}, apierror.New(apierror.KindUnauthorized, msgInvalidCredentials)
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(password)); err != nil {
		return Session{}, apierror.New(apierror.KindUnauthorized, msgInvalidCredentials)
	}

	// 変更時刻は切り上げて保存されるため、変更と同じ秒のログインでも
	// 変更時刻より前の発行日時にならないようにする
	issuedAt := s.now()
	if issuedAt.Before(id.PasswordModifiedAt) {
		issuedAt = id.PasswordModifiedAt
	}
	tok, err := s.issuer.IssueAt(email, issuedAt)
	if err != nil {
		return Session{}, fmt.Errorf("トークンの発行に失敗: %w", err)
	}
	return Session{Token: tok, Identity: id}, nil
}

// ChangePassword は現在のパスワードを確認してから新しいパスワードに変更する。
// パスワード変更時刻と同じ時刻で新しいトークンを発行するため、
// このリクエストの呼び出し元は締め出されない。それ以前のトークンはすべて失効する。
func (s *Service) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) (Session, error) {
	if email == "" {
		return Session{}, apierror.New(apierror.KindUnauthenticated, "認証されていません")
	}
	if err := validatePassword(newPassword); err != nil {
		return Session{}, err
	}

	id, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(currentPassword))
		return Session{}, apierror.New(apierror.KindUnauthorized, msgInvalidCredentials)
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(currentPassword)); err != nil {
		return Session{}, apierror.New(apierror.KindUnauthorized, msgInvalidCredentials)
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	modifiedAt, err := s.store.UpdatePassword(ctx, email, id.PasswordHash, string(newHash), ceilSecond(s.now().UTC()))
	if errors.Is(err, ErrNotFound) {
		// 照合後に別のリクエストがパスワードを変更した
		return Session{}, apierror.New(apierror.KindUnauthorized, msgInvalidCredentials)
	}
	if err != nil {
		return Session{}, err
	}
	id.PasswordHash = string(newHash)
	id.PasswordModifiedAt = modifiedAt

	tok, err := s.issuer.IssueAt(email, modifiedAt)
	if err != nil {
		return Session{}, fmt.Errorf("トークンの発行に失敗: %w", err)
	}

	event.Record(ctx, s.events, email, event.AggregateTypeIdentity, event.TypePasswordChanged,
		event.PasswordChangedData{ModifiedAt: modifiedAt})
	return Session{Token: tok, Identity: id}, nil
}

// Profile はメールアドレスのIDを返す。
func (s *Service) Profile(ctx context.Context, email string) (Identity, error) {
	id, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, apierror.New(apierror.KindNotFound, "アカウントが見つかりません")
	}
	return id, err
}

// ChangeRole はIDのロールを変更する。actorは監査イベントに記録する変更者。
// 変更は次のリクエストの失効チェックから反映される。
func (s *Service) ChangeRole(ctx context.Context, actor, email, roleName string) (Identity, error) {
	role, ok := authz.ParseRole(roleName)
	if !ok {
		return Identity{}, apierror.Newf(apierror.KindBadRequest, "不明なロールです: %q", roleName)
	}

	before, err := s.Profile(ctx, email)
	if err != nil {
		return Identity{}, err
	}

	after, err := s.store.UpdateRole(ctx, email, role)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, apierror.New(apierror.KindNotFound, "アカウントが見つかりません")
	}
	if err != nil {
		return Identity{}, err
	}

	event.Record(ctx, s.events, email, event.AggregateTypeIdentity, event.TypeRoleChanged,
		event.RoleChangedData{From: string(before.Role), To: string(role), ChangedBy: actor})
	return after, nil
}

// EnsureAdmin は指定メールアドレスのIDが無ければADMINロールで作成する。
// 既に存在する場合は何もしない。
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	existing, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != authz.RoleAdmin {
			slog.WarnContext(ctx, "初期管理者アカウントが既に別のロールで存在します", "email", email, "role", existing.Role)
		}
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	if _, err := s.create(ctx, email, password, authz.RoleAdmin); err != nil {
		return fmt.Errorf("初期管理者アカウントの作成に失敗: %w", err)
	}
	slog.InfoContext(ctx, "初期管理者アカウントを作成しました", "email", email)
	return nil
}

// ceilSecond は t を秒単位に切り上げる。
// トークンの発行日時は秒精度のため、同じ秒のうち変更より前に発行されたトークンも
// 変更時刻より小さい発行日時になる。
func ceilSecond(t time.Time) time.Time {
	truncated := t.Truncate(time.Second)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Second)
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apierror.New(apierror.KindBadRequest, "メールアドレスの形式が正しくありません")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return apierror.Newf(apierror.KindBadRequest,
			"パスワードは%dバイト以上%dバイト以下で指定してください", minPasswordLength, maxPasswordLength)
	}
	return nil
}
