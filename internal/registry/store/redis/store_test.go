package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poe/internal/registry/models"
)

func TestKeyLayout(t *testing.T) {
	s := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	rid := models.IdentityOf(models.Record{ID: []byte("k")})

	assert.Equal(t, "poe:record:"+rid.String(), s.key(rid))
	assert.Equal(t, "poe:events", s.Stream())
}

func TestXAddArgs(t *testing.T) {
	s := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "reg", WithStreamMaxLen(1000))
	rid := models.IdentityOf(models.Record{ID: []byte("k")})
	event := models.NewTransferredEvent("alice", "bob", rid, 12, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	args, err := s.xaddArgs(event)
	require.NoError(t, err)

	assert.Equal(t, "reg:events", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)
	values := args.Values.(map[string]any)
	assert.Equal(t, "record_transferred", values["kind"])
	assert.Equal(t, "12", values["height"])
	assert.Contains(t, values["payload"], `"recipient":"bob"`)
}

func TestOwnershipFields(t *testing.T) {
	fields := ownershipFields(models.Ownership{Owner: "alice", Height: 9})
	assert.Equal(t, []any{"owner", "alice", "height", "9"}, fields)
}
