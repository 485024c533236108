package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := Config{Port: "8083", DatabaseURL: "sqlite://:memory:", MenuURL: "http://menu:8082", MenuTimeout: time.Second}
	assert.NoError(t, valid.Validate())

	noDB := valid
	noDB.DatabaseURL = ""
	assert.ErrorContains(t, noDB.Validate(), "DATABASE_URL")

	badMenu := valid
	badMenu.MenuURL = "menu:8082"
	assert.ErrorContains(t, badMenu.Validate(), "MENU_URL")

	noTimeout := valid
	noTimeout.MenuTimeout = 0
	assert.ErrorContains(t, noTimeout.Validate(), "MENU_TIMEOUT")
}
