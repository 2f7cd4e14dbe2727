package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store/drivers/memory"
	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
)

func TestHousekeeping_CleansStaleConnectionsOnStart(t *testing.T) {
	ctx := context.Background()

	backend := memory.NewStore()
	cipher, err := cryptox.NewCipher([]byte("test-master-secret"))
	require.NoError(t, err)
	ts := NewTokenStore(backend, cipher, testLogger())

	stale := time.Now().UTC().Add(-StaleConnectionAge - time.Hour)
	enc, err := cipher.Encrypt("a")
	require.NoError(t, err)
	require.NoError(t, backend.Connections().Upsert(ctx, domain.ConnectionRecord{
		UserID:               "user-stale",
		SessionID:            "sess-stale",
		AccessTokenEncrypted: enc,
		CreatedAt:            stale,
		LastUsed:             stale,
	}))

	flow := newTestFlow(t, "https://login.example.com")
	hk := NewHousekeepingService(ts, flow, testLogger(), time.Hour)

	hk.Start()
	defer hk.Stop()

	require.Eventually(t, func() bool {
		return !ts.HasActiveConnection(ctx, "user-stale")
	}, time.Second, 10*time.Millisecond, "startup cleanup must remove the stale connection")
}

func TestHousekeeping_StopWaitsForWorker(t *testing.T) {
	ts := newTestTokenStore(t, nil)
	flow := newTestFlow(t, "https://login.example.com")
	hk := NewHousekeepingService(ts, flow, testLogger(), 10*time.Millisecond)

	hk.Start()
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		hk.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestHousekeeping_SweepDropsExpiredStates(t *testing.T) {
	flow := newTestFlow(t, "https://login.example.com")

	issued := time.Now()
	flow.now = func() time.Time { return issued }
	_, err := flow.GenerateAuthURL("user-1", "sess-1", "")
	require.NoError(t, err)

	flow.now = func() time.Time { return issued.Add(StateValidityWindow + time.Minute) }

	hk := NewHousekeepingService(newTestTokenStore(t, nil), flow, testLogger(), time.Hour)
	hk.sweep()
	require.Equal(t, 0, flow.PendingStateCount())
}
