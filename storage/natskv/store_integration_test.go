//go:build integration

package natskv

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/storage/storetest"
)

// SEMPLAN_NATS_URL must point at a JetStream-enabled server.
func TestStore_Conformance(t *testing.T) {
	url := os.Getenv("SEMPLAN_NATS_URL")
	if url == "" {
		t.Skip("SEMPLAN_NATS_URL not set")
	}

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	js, err := jetstream.New(conn)
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T) storage.Store {
		prefix := "TEST_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		ctx := context.Background()
		s, err := NewStore(ctx, js, prefix)
		require.NoError(t, err)

		docs, versions, chat, profiles := BucketNames(prefix)
		t.Cleanup(func() {
			for _, name := range []string{docs, versions, chat, profiles} {
				_ = js.DeleteKeyValue(ctx, name)
			}
		})
		return s
	})
}
