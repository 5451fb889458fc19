package leadership

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestNewElectionDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	e := NewElection(client, Config{LeaseDuration: 9 * time.Second, RenewalInterval: time.Minute}, zerolog.Nop())
	if e.config.ElectionKey != defaultElectionKey {
		t.Fatalf("expected default key, got %q", e.config.ElectionKey)
	}
	if e.config.RenewalInterval != 3*time.Second {
		t.Fatalf("renewal interval must stay below the lease, got %s", e.config.RenewalInterval)
	}
	if e.config.InstanceID == "" {
		t.Fatal("expected generated instance id")
	}
}

func TestElectionWithoutRedisIsNotLeader(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	e := NewElection(client, Config{LeaseDuration: 300 * time.Millisecond}, zerolog.Nop())
	e.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	if e.IsLeader() {
		t.Fatal("instance must not lead without a reachable lease store")
	}
	e.Stop()
	e.Stop()
}

func TestAlwaysLeads(t *testing.T) {
	var l Leader = Always{}
	if !l.IsLeader() {
		t.Fatal("Always must lead")
	}
}
