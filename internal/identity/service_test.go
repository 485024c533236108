package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/event"
)

func TestServiceRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("USERロールで登録され登録時刻でトークンが発行されること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		sess, err := env.service.Register(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		assert.Equal(t, authz.RoleUser, sess.Identity.Role)
		assert.Equal(t, int64(1000), sess.Identity.CreatedAt.Unix())
		assert.Equal(t, sess.Identity.CreatedAt, sess.Identity.PasswordModifiedAt)
		assert.Equal(t, int64(1000), sess.Token.IssuedAt.Unix())
		assert.NotEqual(t, "P@ssw0rd1", sess.Identity.PasswordHash)

		claims, err := env.codec.Decode(sess.Token.Value)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", claims.Subject)
		assert.Equal(t, int64(1000), claims.IssuedAt.Unix())

		assert.Equal(t, []event.Type{event.TypeIdentityRegistered}, env.events.types())
	})

	t.Run("登録済みのメールアドレスはConflictになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.Register(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		_, err = env.service.Register(ctx, "alice@example.com", "another-pass")
		assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))
	})

	t.Run("入力が不正な場合はBadRequestになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		cases := []struct{ email, password string }{
			{"not-an-email", "P@ssw0rd1"},
			{"Alice <alice@example.com>", "P@ssw0rd1"},
			{"alice@example.com", "short"},
			{"alice@example.com", string(make([]byte, 73))},
		}
		for _, c := range cases {
			_, err := env.service.Register(ctx, c.email, c.password)
			assert.Equal(t, apierror.KindBadRequest, apierror.KindOf(err), "email=%q", c.email)
		}
	})
}

func TestServiceLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t, 1000)
	_, err := env.service.Register(ctx, "alice@example.com", "P@ssw0rd1")
	require.NoError(t, err)

	t.Run("正しいパスワードでログイン時刻のトークンが発行されること", func(t *testing.T) {
		env.clock.Set(1500)
		sess, err := env.service.Login(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)
		assert.Equal(t, int64(1500), sess.Token.IssuedAt.Unix())
	})

	t.Run("メールアドレス不明とパスワード不一致で同じエラーになること", func(t *testing.T) {
		_, errWrongPassword := env.service.Login(ctx, "alice@example.com", "wrong-password")
		_, errUnknownEmail := env.service.Login(ctx, "nobody@example.com", "P@ssw0rd1")

		require.Error(t, errWrongPassword)
		require.Error(t, errUnknownEmail)
		assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(errWrongPassword))
		assert.Equal(t, errWrongPassword.Error(), errUnknownEmail.Error())
	})
}

func TestServiceChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("変更時刻と新しいトークンの発行日時が一致すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.Register(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		env.clock.Set(2000)
		sess, err := env.service.ChangePassword(ctx, "alice@example.com", "P@ssw0rd1", "N3wP@ssword")
		require.NoError(t, err)
		assert.Equal(t, int64(2000), sess.Identity.PasswordModifiedAt.Unix())
		assert.Equal(t, int64(2000), sess.Token.IssuedAt.Unix())

		stored, err := env.store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(2000), stored.PasswordModifiedAt.Unix())

		res, err := env.checker.Check(ctx, "alice@example.com", sess.Token.IssuedAt)
		require.NoError(t, err)
		assert.Equal(t, StatusValid, res.Status, "パスワード変更したリクエスト自身は締め出されないこと")

		_, err = env.service.Login(ctx, "alice@example.com", "P@ssw0rd1")
		assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err), "古いパスワードではログインできないこと")
		_, err = env.service.Login(ctx, "alice@example.com", "N3wP@ssword")
		require.NoError(t, err)

		assert.Equal(t, []event.Type{event.TypeIdentityRegistered, event.TypePasswordChanged}, env.events.types())
	})

	t.Run("同じ秒のうち変更より前に発行されたトークンも失効すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.Register(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		env.clock.SetTime(time.Unix(2000, int64(100*time.Millisecond)).UTC())
		before, err := env.service.Login(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		env.clock.SetTime(time.Unix(2000, int64(900*time.Millisecond)).UTC())
		changed, err := env.service.ChangePassword(ctx, "alice@example.com", "P@ssw0rd1", "N3wP@ssword")
		require.NoError(t, err)
		assert.Equal(t, int64(2001), changed.Identity.PasswordModifiedAt.Unix())
		assert.Equal(t, int64(2001), changed.Token.IssuedAt.Unix())

		res, err := env.checker.Check(ctx, "alice@example.com", before.Token.IssuedAt)
		require.NoError(t, err)
		assert.Equal(t, StatusOutdated, res.Status)

		res, err = env.checker.Check(ctx, "alice@example.com", changed.Token.IssuedAt)
		require.NoError(t, err)
		assert.Equal(t, StatusValid, res.Status)

		env.clock.SetTime(time.Unix(2000, int64(950*time.Millisecond)).UTC())
		after, err := env.service.Login(ctx, "alice@example.com", "N3wP@ssword")
		require.NoError(t, err)
		res, err = env.checker.Check(ctx, "alice@example.com", after.Token.IssuedAt)
		require.NoError(t, err)
		assert.Equal(t, StatusValid, res.Status, "変更直後のログインで得たトークンは有効であること")
	})

	t.Run("現在のパスワードが違う場合はUnauthorizedで変更されないこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.Register(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		env.clock.Set(2000)
		_, err = env.service.ChangePassword(ctx, "alice@example.com", "wrong-password", "N3wP@ssword")
		assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err))

		stored, err := env.store.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), stored.PasswordModifiedAt.Unix())
	})

	t.Run("メールアドレスが空の場合はUnauthenticatedになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.ChangePassword(ctx, "", "P@ssw0rd1", "N3wP@ssword")
		assert.Equal(t, apierror.KindUnauthenticated, apierror.KindOf(err))
	})

	t.Run("新しいパスワードが短い場合はBadRequestになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.Register(ctx, "alice@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		_, err = env.service.ChangePassword(ctx, "alice@example.com", "P@ssw0rd1", "short")
		assert.Equal(t, apierror.KindBadRequest, apierror.KindOf(err))
	})
}

func TestServiceChangeRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ロールを大文字小文字を区別せずに変更できること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.Register(ctx, "bob@example.com", "P@ssw0rd1")
		require.NoError(t, err)

		got, err := env.service.ChangeRole(ctx, "admin@example.com", "bob@example.com", "supervisor")
		require.NoError(t, err)
		assert.Equal(t, authz.RoleSupervisor, got.Role)

		res, err := env.checker.Check(ctx, "bob@example.com", got.PasswordModifiedAt)
		require.NoError(t, err)
		assert.Equal(t, authz.RoleSupervisor, res.Role, "失効チェックが新しいロールを返すこと")

		types := env.events.types()
		assert.Equal(t, event.TypeRoleChanged, types[len(types)-1])
	})

	t.Run("不明なロールはBadRequestになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.ChangeRole(ctx, "admin@example.com", "bob@example.com", "OWNER")
		assert.Equal(t, apierror.KindBadRequest, apierror.KindOf(err))
	})

	t.Run("存在しないIDはNotFoundになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, 1000)
		_, err := env.service.ChangeRole(ctx, "admin@example.com", "nobody@example.com", "ADMIN")
		assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
	})
}

func TestServiceEnsureAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t, 1000)
	require.NoError(t, env.service.EnsureAdmin(ctx, "root@example.com", "R00tP@ssword"))

	got, err := env.store.FindByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleAdmin, got.Role)

	require.NoError(t, env.service.EnsureAdmin(ctx, "root@example.com", "different-pass"), "2回目は何もしないこと")
	again, err := env.store.FindByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, got.PasswordHash, again.PasswordHash)
}
