package ingest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lessonpulse/notify/internal/ingest"
	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/pkg/metrics"
)

// frameRecorder collects handled frames; the listener runs on its own
// goroutine, so access is locked
type frameRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *frameRecorder) handle(eventType string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
}

func (r *frameRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

var _ = Describe("Listener", func() {
	var (
		recorder *frameRecorder
		registry *prometheus.Registry
		upgrader websocket.Upgrader
	)

	BeforeEach(func() {
		recorder = &frameRecorder{}
		registry = prometheus.NewRegistry()
	})

	// serve runs a websocket endpoint that hands each connection to onConn
	serve := func(onConn func(conn *websocket.Conn)) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			onConn(conn)
		}))
	}

	wsURL := func(srv *httptest.Server) string {
		return "ws" + strings.TrimPrefix(srv.URL, "http")
	}

	newListener := func(url string) *ingest.Listener {
		return ingest.NewListener(
			logging.Discard(),
			metrics.New(registry),
			url,
			10*time.Millisecond,
			50*time.Millisecond,
			recorder.handle,
		)
	}

	reconnects := func() float64 {
		families, err := registry.Gather()
		Expect(err).NotTo(HaveOccurred())
		for _, family := range families {
			if family.GetName() == "notify_stream_reconnects_total" {
				return family.GetMetric()[0].GetCounter().GetValue()
			}
		}
		return 0
	}

	It("decodes frames and forwards them to the handler", func() {
		srv := serve(func(conn *websocket.Conn) {
			defer conn.Close()
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"xp_awarded","data":{"amount":5}}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"level_up","data":{"level":3}}`))
			time.Sleep(100 * time.Millisecond)
		})
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go newListener(wsURL(srv)).Run(ctx)

		Eventually(recorder.all).Should(Equal([]string{"xp_awarded", "level_up"}))
	})

	It("skips undecodable and untyped frames without dropping the connection", func() {
		srv := serve(func(conn *websocket.Conn) {
			defer conn.Close()
			conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{"orphan":true}}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"system_notice","data":{"message":"ok"}}`))
			time.Sleep(100 * time.Millisecond)
		})
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go newListener(wsURL(srv)).Run(ctx)

		Eventually(recorder.all).Should(Equal([]string{"system_notice"}))
	})

	It("reconnects after the server drops the connection and counts it", func() {
		var mu sync.Mutex
		connections := 0

		srv := serve(func(conn *websocket.Conn) {
			defer conn.Close()
			mu.Lock()
			connections++
			n := connections
			mu.Unlock()
			if n == 1 {
				// Drop the first connection immediately
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"streak_milestone","data":{"days":7}}`))
			time.Sleep(100 * time.Millisecond)
		})
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go newListener(wsURL(srv)).Run(ctx)

		Eventually(recorder.all).Should(ContainElement("streak_milestone"))
		mu.Lock()
		Expect(connections).To(BeNumerically(">=", 2))
		mu.Unlock()
		Expect(reconnects()).To(BeNumerically(">=", 1))
	})

	It("does not count dial failures before the first connect", func() {
		srv := serve(func(conn *websocket.Conn) { conn.Close() })
		url := wsURL(srv)
		// Nothing is listening; every dial fails
		srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go newListener(url).Run(ctx)

		Consistently(reconnects, 200*time.Millisecond).Should(BeZero())
	})

	It("stops on context cancellation", func() {
		srv := serve(func(conn *websocket.Conn) {
			defer conn.Close()
			time.Sleep(time.Second)
		})
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			newListener(wsURL(srv)).Run(ctx)
			close(done)
		}()

		cancel()
		Eventually(done).Should(BeClosed())
	})
})
