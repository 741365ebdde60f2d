package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal tracks poll loop iterations per VM and outcome
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivawatch_ticks_total",
			Help: "Total number of subscription poll ticks",
		},
		[]string{"vm_id", "result"},
	)

	// FetchErrorsTotal tracks data source failures per stage (head, range)
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivawatch_fetch_errors_total",
			Help: "Total number of failed chain data source queries",
		},
		[]string{"vm_id", "stage"},
	)

	// TransactionsDelivered tracks transactions handed to the handler
	TransactionsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivawatch_transactions_delivered_total",
			Help: "Total number of IVA transactions dispatched to handlers",
		},
		[]string{"vm_id"},
	)

	// HandlerErrorsTotal tracks handler errors and panics
	HandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivawatch_handler_errors_total",
			Help: "Total number of handler failures",
		},
		[]string{"vm_id"},
	)

	// CheckpointErrorsTotal tracks failed checkpoint writes
	CheckpointErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivawatch_checkpoint_errors_total",
			Help: "Total number of failed checkpoint saves",
		},
		[]string{"vm_id"},
	)

	// CursorBlock tracks the next block a subscription will fetch
	CursorBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ivawatch_cursor_block",
			Help: "Next block number not yet fetched",
		},
		[]string{"vm_id"},
	)

	// ChainHeadBlock tracks the chain head seen by a subscription
	ChainHeadBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ivawatch_chain_head_block",
			Help: "Latest confirmed block reported by the data source",
		},
		[]string{"vm_id"},
	)

	// WindowSize tracks the number of blocks requested per range query
	WindowSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ivawatch_window_size_blocks",
			Help:    "Blocks requested per range query",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000},
		},
		[]string{"vm_id"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ivawatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivawatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// DBConnectionPoolUsage tracks open/max connection percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ivawatch_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
