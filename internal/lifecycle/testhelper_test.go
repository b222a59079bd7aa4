package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Izume01/reliq/internal/crypto"
	"github.com/Izume01/reliq/internal/store"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type harness struct {
	svc    *Service
	meta   *store.SQLiteStore
	blobs  store.CiphertextStore
	redis  *miniredis.Miniredis
	cipher *crypto.Cipher
	clock  time.Time
}

// newHarness wires a Service over a temp-file SQLite database and a
// miniredis-backed ciphertext store.
func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := store.NewDB(context.Background(), filepath.Join(t.TempDir(), "reliq.db"))
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(db.Writer))
	meta := store.NewSQLiteStore(db)
	t.Cleanup(func() { _ = meta.Close() })

	mr := miniredis.RunT(t)
	blobs, err := store.NewRedisStore(&redis.Options{Addr: mr.Addr()}, store.DefaultKeyPrefix)
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	c, err := crypto.NewCipher(testKeyHex)
	require.NoError(t, err)

	h := &harness{
		svc:    NewService(meta, blobs, crypto.NewPasswordGate(bcrypt.MinCost), c, DefaultPolicy()),
		meta:   meta,
		blobs:  blobs,
		redis:  mr,
		cipher: c,
		clock:  time.Now().UTC(),
	}
	h.svc.now = func() time.Time { return h.clock }
	return h
}

// advance moves the service clock and the redis TTL clock together.
func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
	h.redis.FastForward(d)
}

// request seals plaintext and returns a valid CreateRequest for owner-1.
func (h *harness) request(t *testing.T, plaintext string) CreateRequest {
	t.Helper()
	sealed, err := h.cipher.Seal([]byte(plaintext))
	require.NoError(t, err)
	return CreateRequest{
		Ciphertext:        sealed.Ciphertext,
		IV:                sealed.IV,
		AuthTag:           sealed.Tag,
		TTLSeconds:        300,
		MaxFailedAttempts: 5,
		MaxViews:          1,
		OwnerID:           "owner-1",
	}
}

func (h *harness) create(t *testing.T, req CreateRequest) string {
	t.Helper()
	res, err := h.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return res.Slug
}

// failingBlobs is a CiphertextStore whose writes and reads fail.
type failingBlobs struct {
	store.CiphertextStore
	err error
}

func (f *failingBlobs) Put(context.Context, string, []byte, time.Duration) error {
	return f.err
}

func (f *failingBlobs) Get(context.Context, string) ([]byte, error) {
	return nil, f.err
}

var errConnRefused = errors.New("connection refused")

// stickyMeta is a MetadataStore whose deletes fail, so purges leave the row.
type stickyMeta struct {
	store.MetadataStore
}

func (stickyMeta) Delete(context.Context, string) error {
	return errConnRefused
}

// stickyBlobs is a CiphertextStore whose deletes fail.
type stickyBlobs struct {
	store.CiphertextStore
}

func (stickyBlobs) Delete(context.Context, string) error {
	return errConnRefused
}

// blockingGate parks Verify for one password until release is closed, and
// closes entered once it is parked.
type blockingGate struct {
	PasswordGate
	password string
	entered  chan struct{}
	release  chan struct{}
}

func newBlockingGate(password string) *blockingGate {
	return &blockingGate{
		PasswordGate: crypto.NewPasswordGate(bcrypt.MinCost),
		password:     password,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (g *blockingGate) Verify(plaintext, hash string) (bool, error) {
	if plaintext == g.password {
		close(g.entered)
		<-g.release
	}
	return g.PasswordGate.Verify(plaintext, hash)
}
