package core

import (
	"context"
	"strconv"
	"testing"

	"github.com/vovakirdan/campuschat/internal/store/sqlite"
)

func benchmarkHubSend(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := sqlite.New(":memory:")
	if err != nil {
		b.Fatalf("open store: %v", err)
	}
	defer st.Close()

	hub := NewHub(Deps{Authenticator: tokenAuth{}, Messages: st, Sequencer: st}, Options{SendBuffer: 1024})

	join := func(connID, userID string) *Conn {
		c, err := hub.Register(ctx, connID, userID)
		if err != nil {
			b.Fatalf("register %s: %v", connID, err)
		}
		if _, err := hub.Join(ctx, c, "course_bench"); err != nil {
			b.Fatalf("join %s: %v", connID, err)
		}
		return c
	}

	sender := join("sender", "sender")
	clients := make([]*Conn, 0, recipients)
	for i := range recipients {
		clients = append(clients, join("c"+strconv.Itoa(i), "u"+strconv.Itoa(i)))
	}

	// Drain everyone but the first recipient to avoid slow-consumer closes.
	target := clients[0]
	drain(target)
	for _, c := range append(clients[1:], sender) {
		go func(c *Conn) {
			for {
				select {
				case <-c.Events():
				case <-ctx.Done():
					return
				}
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := hub.Send(ctx, sender, "course_bench", "payload"); err != nil {
			b.Fatalf("send: %v", err)
		}
		<-target.Events()
	}
}

func BenchmarkHubSend_10(b *testing.B)  { benchmarkHubSend(b, 10) }
func BenchmarkHubSend_100(b *testing.B) { benchmarkHubSend(b, 100) }
func BenchmarkHubSend_500(b *testing.B) { benchmarkHubSend(b, 500) }
