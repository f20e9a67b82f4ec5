package telemetry

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mirror-control/mcc/internal/config"
	"github.com/mirror-control/mcc/internal/mirror"
)

func BenchmarkPublishWithSubscribers(b *testing.B) {
	for _, count := range []int{1, 5, 10} {
		b.Run(fmt.Sprintf("Subscribers_%d", count), func(b *testing.B) {
			hub := NewHub(config.LoadBaseline(), nil)
			defer hub.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			for i := 0; i < count; i++ {
				req := httptest.NewRequest("GET", "/telemetry", nil)
				w := httptest.NewRecorder()
				go func() {
					_ = hub.Subscribe(ctx, w, req)
				}()
			}
			for hub.ClientCount() < count {
				time.Sleep(time.Millisecond)
			}

			ev := mirror.Event{Type: mirror.EventLocked, Snapshot: mirror.Snapshot{Enabled: true, Locked: true}}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				hub.HandleEvent(ev)
			}
		})
	}
}

func BenchmarkBufferEvent(b *testing.B) {
	buf := NewEventBuffer(50, time.Hour)
	for i := 0; i < b.N; i++ {
		buf.AddEvent(Event{ID: int64(i + 1), Type: "locked"})
	}
}
