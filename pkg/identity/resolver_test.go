package identity

import (
	"context"
	"errors"
	"net/http/cookiejar"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStores(t *testing.T) (*FileStore, *CookieStore) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse("https://habits.example.com/api")
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Now())
	return NewFileStore(filepath.Join(t.TempDir(), "device.json")), NewCookieStore(jar, u, 0, clock)
}

var testHardware = HardwareInfo{Cores: 8, ScreenWidth: 1920, ScreenHeight: 1080, Platform: "darwin/arm64"}

func TestResolver_DerivesAndPersists(t *testing.T) {
	file, cookie := setupStores(t)
	ctx := context.Background()
	r := NewResolver(testHardware, file, cookie)

	id, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, Fingerprint(testHardware)+"-"), id)

	fromFile, err := file.Load(ctx)
	require.NoError(t, err)
	fromCookie, err := cookie.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, fromFile)
	assert.Equal(t, id, fromCookie)

	again, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestResolver_PrimaryWinsAndPropagates(t *testing.T) {
	file, cookie := setupStores(t)
	ctx := context.Background()
	require.NoError(t, file.Save(ctx, "from-file"))
	require.NoError(t, cookie.Save(ctx, "from-cookie"))

	id, err := NewResolver(testHardware, file, cookie).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-file", id)

	fromCookie, _ := cookie.Load(ctx)
	assert.Equal(t, "from-file", fromCookie)
}

func TestResolver_SecondaryRestoresPrimary(t *testing.T) {
	file, cookie := setupStores(t)
	ctx := context.Background()
	require.NoError(t, cookie.Save(ctx, "from-cookie"))

	id, err := NewResolver(testHardware, file, cookie).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", id)

	fromFile, _ := file.Load(ctx)
	assert.Equal(t, "from-cookie", fromFile)
}

type brokenStore struct{}

func (brokenStore) Name() string                              { return "broken" }
func (brokenStore) Load(ctx context.Context) (string, error)  { return "", errors.New("read failed") }
func (brokenStore) Save(ctx context.Context, id string) error { return errors.New("write failed") }
func (brokenStore) Clear(ctx context.Context) error           { return errors.New("clear failed") }

func TestResolver_StoreFailuresAreNotFatal(t *testing.T) {
	file, _ := setupStores(t)
	ctx := context.Background()
	r := NewResolver(testHardware, brokenStore{}, file)

	id, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	fromFile, _ := file.Load(ctx)
	assert.Equal(t, id, fromFile)

	assert.Error(t, r.Clear(ctx))
	fromFile, _ = file.Load(ctx)
	assert.Empty(t, fromFile)
}

func TestResolver_Clear(t *testing.T) {
	file, cookie := setupStores(t)
	ctx := context.Background()
	r := NewResolver(testHardware, file, cookie)
	_, err := r.Resolve(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Clear(ctx))
	fromFile, _ := file.Load(ctx)
	fromCookie, _ := cookie.Load(ctx)
	assert.Empty(t, fromFile)
	assert.Empty(t, fromCookie)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint(testHardware), Fingerprint(testHardware))
	other := testHardware
	other.Cores = 4
	assert.NotEqual(t, Fingerprint(testHardware), Fingerprint(other))

	a, b := NewDeviceID(testHardware), NewDeviceID(testHardware)
	assert.NotEqual(t, a, b)
	assert.Equal(t, Fingerprint(testHardware), NewResolver(testHardware).PhysicalDeviceID())

	_, err := NewResolver(testHardware).Resolve(context.Background())
	assert.Error(t, err)
}
