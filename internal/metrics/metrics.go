package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route pattern, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // Sessions is the number of live realtime sessions
    Sessions = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "realtime_sessions", Help: "Live realtime sessions."},
    )
    // EventsPublished counts publish calls by scope kind
    EventsPublished = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "realtime_events_published_total", Help: "Events published by scope."},
        []string{"scope"},
    )
    // Deliveries counts per-session enqueue outcomes (sent, dropped)
    Deliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "realtime_deliveries_total", Help: "Per-session event deliveries by result."},
        []string{"result"},
    )
    // AuthAttempts counts session credential checks (ok, anonymous)
    AuthAttempts = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "realtime_auth_total", Help: "Session authentication attempts by result."},
        []string{"result"},
    )
    // Notifications counts records appended to the notification feed
    Notifications = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "feed_notifications_total", Help: "Notifications created."},
    )
    // IngressMessages counts mutations received from the broker by result
    IngressMessages = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "ingress_messages_total", Help: "Broker mutations by result."},
        []string{"result"},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(Sessions)
        Registry.MustRegister(EventsPublished)
        Registry.MustRegister(Deliveries)
        Registry.MustRegister(AuthAttempts)
        Registry.MustRegister(Notifications)
        Registry.MustRegister(IngressMessages)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
