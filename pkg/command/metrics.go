package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// commandsTotal counts handled invocations by command and result
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questbot_commands_total",
		Help: "Handled chat invocations by command and result",
	}, []string{"command", "result"})

	// cellWritesTotal counts cells written to the ledger, by column
	cellWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questbot_ledger_cell_writes_total",
		Help: "Cells written to the ledger by target column",
	}, []string{"column"})

	// rowsCreatedTotal counts ledger rows created for new participants
	rowsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "questbot_ledger_rows_created_total",
		Help: "Ledger rows created for previously unseen participants",
	})

	// applyDuration tracks the time spent waiting for and running a ledger operation
	applyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "questbot_ledger_apply_duration_seconds",
		Help:    "Ledger operation duration including queueing, in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"command"})
)
