package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// These tests run against a real server when SMARTBUDGET_TEST_REDIS_URL is set.
func newTestRedisCache(t *testing.T) *RedisCache[map[string]string] {
	t.Helper()
	url := os.Getenv("SMARTBUDGET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SMARTBUDGET_TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache[map[string]string](client, "smartbudget-test-"+uuid.NewString(), time.Minute)
	t.Cleanup(func() {
		for _, k := range c.Keys("") {
			c.Delete(k)
		}
	})
	return c
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c := newTestRedisCache(t)

	c.Set("v1:/index.html", map[string]string{"body": "<html>"})
	got, ok := c.Get("v1:/index.html")
	if !ok || got["body"] != "<html>" {
		t.Errorf("Get() = %v, %v", got, ok)
	}

	c.Set("v2:/index.html", map[string]string{})
	if keys := c.Keys("v1:"); len(keys) != 1 || keys[0] != "v1:/index.html" {
		t.Errorf("Keys(v1:) = %v", keys)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}

	c.Delete("v1:/index.html")
	if _, ok := c.Get("v1:/index.html"); ok {
		t.Error("Get after Delete should miss")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisClient(ctx, "127.0.0.1:1"); err == nil {
		t.Error("expected an error for an unreachable server")
	}
}
