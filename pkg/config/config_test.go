package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 環境変数を書き換えるテストは t.Setenv を使うため並列実行しない。

func TestString(t *testing.T) {
	t.Setenv("CONFIG_TEST_STRING", "  value  ")
	assert.Equal(t, "value", String("CONFIG_TEST_STRING", "fallback"))

	t.Setenv("CONFIG_TEST_STRING", "   ")
	assert.Equal(t, "fallback", String("CONFIG_TEST_STRING", "fallback"))
}

func TestInt(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT", "42")
	assert.Equal(t, 42, Int("CONFIG_TEST_INT", 1))

	t.Setenv("CONFIG_TEST_INT", "forty-two")
	assert.Equal(t, 1, Int("CONFIG_TEST_INT", 1))
}

func TestDuration(t *testing.T) {
	t.Setenv("CONFIG_TEST_DURATION", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, Duration("CONFIG_TEST_DURATION", time.Second))

	t.Setenv("CONFIG_TEST_DURATION", "10")
	assert.Equal(t, time.Second, Duration("CONFIG_TEST_DURATION", time.Second), "単位なしは解析できない")
}

func TestCSV(t *testing.T) {
	t.Setenv("CONFIG_TEST_CSV", " /a, ,/b ,")
	assert.Equal(t, []string{"/a", "/b"}, CSV("CONFIG_TEST_CSV", nil))

	t.Setenv("CONFIG_TEST_CSV", "")
	assert.Equal(t, []string{"/x"}, CSV("CONFIG_TEST_CSV", []string{"/x"}))
}

func TestLoadEnv(t *testing.T) {
	t.Run("ファイルの値を読み込み既存の環境変数は上書きしないこと", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("CONFIG_TEST_A=from-file\nCONFIG_TEST_B=from-file\n"), 0o600))

		t.Setenv("CONFIG_TEST_A", "")
		require.NoError(t, os.Unsetenv("CONFIG_TEST_A"))
		t.Setenv("CONFIG_TEST_B", "from-env")

		require.NoError(t, LoadEnv(path))
		assert.Equal(t, "from-file", os.Getenv("CONFIG_TEST_A"))
		assert.Equal(t, "from-env", os.Getenv("CONFIG_TEST_B"))
	})

	t.Run("ファイルが無い場合はエラーにしないこと", func(t *testing.T) {
		require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
	})

	t.Run("パスが空の場合は何もしないこと", func(t *testing.T) {
		require.NoError(t, LoadEnv(""))
	})
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	t.Run("デフォルト値", func(t *testing.T) {
		t.Parallel()

		f, err := ParseFlags("test", nil)
		require.NoError(t, err)
		assert.Equal(t, ".env", f.EnvFile)
		assert.Equal(t, "8080", f.PortOr("8080"))
	})

	t.Run("フラグで上書きできること", func(t *testing.T) {
		t.Parallel()

		f, err := ParseFlags("test", []string{"--env-file", "prod.env", "-p", "9090"})
		require.NoError(t, err)
		assert.Equal(t, "prod.env", f.EnvFile)
		assert.Equal(t, "9090", f.PortOr("8080"))
	})

	t.Run("helpはErrHelpを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := ParseFlags("test", []string{"--help"})
		require.ErrorIs(t, err, pflag.ErrHelp)
	})

	t.Run("未知のフラグはエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := ParseFlags("test", []string{"--unknown"})
		require.Error(t, err)
	})
}
