package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength は署名鍵に要求する最小バイト数。
const MinSecretLength = 32

var (
	// ErrExpired はトークンの有効期限が切れていることを表す。
	ErrExpired = errors.New("トークンの有効期限が切れています")
	// ErrMalformed はトークンの構造が不正であることを表す。
	ErrMalformed = errors.New("トークンの形式が不正です")
	// ErrUnsupportedFormat は署名アルゴリズムが対応外であることを表す。
	ErrUnsupportedFormat = errors.New("対応していないトークン形式です")
	// ErrBadSignature は署名が検証できないことを表す。
	ErrBadSignature = errors.New("トークンの署名が不正です")
	// ErrWeakSecret は署名鍵が短すぎることを表す。
	ErrWeakSecret = fmt.Errorf("署名鍵は%dバイト以上必要です", MinSecretLength)
)

// errUnexpectedAlgorithm はkeyfuncがHS256以外を拒否する際に使う内部エラー。
var errUnexpectedAlgorithm = errors.New("unexpected signing algorithm")

// Claims はトークンに含まれるクレーム。ロールは含まない。
type Claims struct {
	// Subject はIDのメールアドレス。
	Subject string
	// IssuedAt は発行日時（秒精度）。
	IssuedAt time.Time
	// ExpiresAt は有効期限（秒精度）。
	ExpiresAt time.Time
}

// Codec はHS256で署名されたトークンのエンコードとデコードを行う。I/Oは行わない。
type Codec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption はCodecの設定を変更する。
type CodecOption func(*Codec)

// WithCodecClock はデコード時に使う現在時刻の取得関数を差し替える。
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec は新しいCodecを生成する。secretが MinSecretLength 未満の場合はエラーを返す。
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode はクレームに署名してコンパクト形式のトークン文字列を返す。
func (c *Codec) Encode(subject string, issuedAt, expiresAt time.Time) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Decode はトークンを検証してクレームを返す。
// 失敗時は ErrExpired, ErrMalformed, ErrUnsupportedFormat, ErrBadSignature のいずれかをラップして返す。
// 署名の検証は有効期限の検証より先に行われる。
func (c *Codec) Decode(tokenString string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)

	tokenString = strings.TrimSpace(tokenString)
	registered := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(tokenString, registered, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errUnexpectedAlgorithm
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && onlySignatureUndecodable(parser, tokenString) {
			// ヘッダーとクレームが正しく、署名部分だけがデコードできない場合は改ざんとみなす
			return Claims{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
		}
		return Claims{}, classify(err)
	}

	if registered.Subject == "" || registered.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%w: subとiatは必須です", ErrMalformed)
	}

	return Claims{
		Subject:   registered.Subject,
		IssuedAt:  registered.IssuedAt.UTC(),
		ExpiresAt: registered.ExpiresAt.UTC(),
	}, nil
}

// onlySignatureUndecodable はトークンが3つのセグメントから成り、
// ヘッダーとクレームは正しくデコードできるかを判定する。
func onlySignatureUndecodable(parser *jwt.Parser, tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	_, _, err := parser.ParseUnverified(tokenString, &jwt.RegisteredClaims{})
	return err == nil
}

// classify はjwtライブラリのエラーをこのパッケージのエラー分類に変換する。
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
