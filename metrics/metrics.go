// Package metrics exposes a handful of prometheus counters for ambient
// observability: how many blocks have been mined, how many unconfirmed
// transactions were pruned as dust, and how many sync attempts were made.
// None of this feeds back into consensus decisions — it is pure
// observation. The counters are registered with the default prometheus
// registry; no handler in this module serves them over HTTP.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BlocksMined = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boocoin",
		Name:      "blocks_mined_total",
		Help:      "Number of blocks successfully mined by this node.",
	})

	TransactionsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boocoin",
		Name:      "transactions_pruned_total",
		Help:      "Number of unconfirmed transactions dropped as invalid during mining.",
	})

	TransactionsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boocoin",
		Name:      "transactions_submitted_total",
		Help:      "Number of transactions accepted into the unconfirmed pool.",
	})

	SyncAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boocoin",
		Name:      "sync_attempts_total",
		Help:      "Number of outbound sync attempts per peer and outcome.",
	}, []string{"peer", "outcome"})

	BlocksReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boocoin",
		Name:      "blocks_received_total",
		Help:      "Number of blocks received from peers, by outcome; failed outbound block broadcasts are counted with outcome broadcast_failed.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(BlocksMined, TransactionsPruned, TransactionsSubmitted, SyncAttempts, BlocksReceived)
}
