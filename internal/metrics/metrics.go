// Package metrics declares every Prometheus metric this service exports.
// Kept centralized (rather than spread across the packages that increment
// them) so the naming convention stays consistent: namespace_subsystem_name.
//
//   - namespace: ludo (application-level grouping)
//   - subsystem: websocket, room, engine, dispatch, rate_limit, cache,
//     durable_store, circuit_breaker (feature-level grouping)
//   - name: specific metric (connections_active, events_total, ...)
//
// Metric types: Gauge for current state, Counter for cumulative events,
// Histogram for latency/size distributions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSocketConnections tracks live sockets across every room.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ludo", Subsystem: "websocket", Name: "connections_active",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks rooms currently tracked in-process.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ludo", Subsystem: "room", Name: "rooms_active",
		Help: "Current number of active rooms",
	})

	// RoomParticipants tracks current occupancy per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ludo", Subsystem: "room", Name: "participants_count",
		Help: "Number of seated participants in each room",
	}, []string{"room_id"})

	// RoomTransitionsTotal counts lifecycle transitions by target status.
	RoomTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "room", Name: "transitions_total",
		Help: "Total room lifecycle transitions",
	}, []string{"to_status"})

	// WebsocketEvents counts inbound frames reaching dispatch, by result.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "websocket", Name: "events_total",
		Help: "Total WebSocket frames processed",
	}, []string{"message_type", "status"})

	// MessageProcessingDuration times dispatch handling per message type.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ludo", Subsystem: "websocket", Name: "message_processing_seconds",
		Help:    "Time spent dispatching a WebSocket message",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"message_type"})

	// WebsocketGateRejections counts frames dropped by the size or rate gate.
	WebsocketGateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "websocket", Name: "gate_rejections_total",
		Help: "Total frames dropped by the size or rate gate before dispatch",
	}, []string{"gate"})

	// DispatchUnhandledTotal counts message types with no registered handler.
	DispatchUnhandledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "dispatch", Name: "unhandled_total",
		Help: "Total messages of an unrecognized or unregistered type",
	})

	// EngineActionsTotal counts ProcessAction outcomes by action type and result.
	EngineActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "engine", Name: "actions_total",
		Help: "Total game engine actions processed",
	}, []string{"action_type", "result"})

	// EngineEventsEmitted counts events emitted by the engine, by event type.
	EngineEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "engine", Name: "events_emitted_total",
		Help: "Total events emitted by the game engine",
	}, []string{"event_type"})

	// CircuitBreakerState: 0 closed, 1 open, 2 half-open, per backing service.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ludo", Subsystem: "circuit_breaker", Name: "state",
		Help: "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts requests rejected by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "circuit_breaker", Name: "failures_total",
		Help: "Total requests rejected by an open circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded counts requests rejected by an HTTP- or
	// connection-scoped rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "rate_limit", Name: "exceeded_total",
		Help: "Total requests that exceeded a rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests counts requests checked against a rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "rate_limit", Name: "requests_total",
		Help: "Total requests checked against a rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal counts cache adapter operations by outcome.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "cache", Name: "operations_total",
		Help: "Total cache operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration times cache adapter operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ludo", Subsystem: "cache", Name: "operation_duration_seconds",
		Help:    "Duration of cache operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// DurableStoreOperationsTotal counts durable-store RPCs by outcome.
	DurableStoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ludo", Subsystem: "durable_store", Name: "operations_total",
		Help: "Total durable-store RPCs",
	}, []string{"operation", "status"})
)

// IncConnection records a new live WebSocket connection.
func IncConnection() { ActiveWebSocketConnections.Inc() }

// DecConnection records a WebSocket connection closing.
func DecConnection() { ActiveWebSocketConnections.Dec() }
