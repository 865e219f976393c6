package pool

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewConnectionPool(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig(), zap.NewNop())
	require.NotNil(t, pool)
	assert.Equal(t, 0, pool.Stats()["http_clients"])
}

func TestConnectionPool_ClientIsSharedPerHost(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig(), nil)

	client1 := pool.ClientFor("https://oauth2.googleapis.com/token")
	client2 := pool.ClientFor("https://oauth2.googleapis.com/revoke")
	client3 := pool.ClientFor("https://api.github.com/user")

	assert.Same(t, client1, client2)
	assert.NotSame(t, client1, client3)
	assert.Equal(t, 10*time.Second, client1.Timeout)
	assert.Equal(t, 2, pool.Stats()["http_clients"])
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "api.github.com", HostOf("https://api.github.com/user/emails"))
	assert.Equal(t, "127.0.0.1:8080", HostOf("http://127.0.0.1:8080/x"))
	assert.Equal(t, "bare-host", HostOf("bare-host"))
}

func TestConnectionPool_TracksOutcomes(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	pool := NewConnectionPool(DefaultPoolConfig(), nil)
	host := HostOf(srv.URL)
	client := pool.Client(host)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, pool.IsHealthy(host))

	status.Store(http.StatusBadGateway)
	resp, err = client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	stats := pool.GetHealthStats()[host]
	assert.False(t, stats.IsHealthy)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotEmpty(t, stats.LastError)
}

func TestConnectionPool_CloseAll(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig(), nil)
	pool.Client("example1.com")
	pool.Client("example2.com")

	pool.CloseAllConnections()
	assert.Equal(t, 0, pool.Stats()["http_clients"])
}

func TestConnectionPool_ConcurrentAccess(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Client("concurrent-test.com")
			pool.RecordSuccess("concurrent-test.com")
			pool.IsHealthy("concurrent-test.com")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, pool.Stats()["http_clients"])
	assert.Equal(t, 10, pool.GetHealthStats()["concurrent-test.com"].SuccessCount)
}
