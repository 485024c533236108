package token

import (
	"errors"
	"time"
)

// Token は発行されたトークンとそのクレーム。
type Token struct {
	// Value はクライアントに渡すトークン文字列。
	Value string
	// IssuedAt は発行日時（秒精度）。
	IssuedAt time.Time
	// ExpiresAt は有効期限（秒精度）。
	ExpiresAt time.Time
}

// Issuer はIDに対してトークンを発行する。永続化は行わない。
type Issuer struct {
	codec *Codec
	ttl   time.Duration
	now   func() time.Time
}

// IssuerOption はIssuerの設定を変更する。
type IssuerOption func(*Issuer)

// WithIssuerClock は発行時刻の取得関数を差し替える。
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer は新しいIssuerを生成する。ttlは正の値でなければならない。
func NewIssuer(codec *Codec, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if codec == nil {
		return nil, errors.New("codecが指定されていません")
	}
	if ttl <= 0 {
		return nil, errors.New("トークンの有効期間は正の値が必要です")
	}
	i := &Issuer{
		codec: codec,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL はトークンの有効期間を返す。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue は現在時刻で email を subject とするトークンを発行する。
func (i *Issuer) Issue(email string) (Token, error) {
	return i.IssueAt(email, i.now())
}

// IssueAt は指定時刻を発行日時としてトークンを発行する。
// パスワード変更のように、永続化した時刻と同じ時刻で発行したい場合に使う。
func (i *Issuer) IssueAt(email string, at time.Time) (Token, error) {
	issuedAt := at.UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	value, err := i.codec.Encode(email, issuedAt, expiresAt)
	if err != nil {
		return Token{}, err
	}
	return Token{
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}
