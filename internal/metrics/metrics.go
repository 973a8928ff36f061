package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Read metrics - ledger queries through the resilient reader
var (
	LedgerReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_ledger_reads_total",
			Help: "Total number of contract reads by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	ContractUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_contract_unavailable_total",
		Help: "Number of handle requests that found no code at the contract address",
	})
)

// Registry metrics - full-set reconstruction
var (
	RegistryLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkin_registry_load_duration_seconds",
		Help:    "Time taken to reconstruct the full meeting set",
		Buckets: prometheus.DefBuckets,
	})

	PlaceholderRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_registry_placeholder_records_total",
		Help: "Meeting records substituted with a placeholder after a failed read",
	})

	Meetings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkin_meetings",
		Help: "Number of meetings in the last loaded snapshot",
	})

	ActiveMeetings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkin_active_meetings",
		Help: "Number of active meetings in the last loaded snapshot",
	})
)

// Submission metrics - state-changing operations
var (
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_submissions_total",
			Help: "Total number of submissions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkin_confirmation_duration_seconds",
		Help:    "Time between broadcast and confirmed inclusion",
		Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
	})
)

// Network metrics - chain negotiation with the wallet
var (
	NetworkSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_network_switches_total",
			Help: "Chain switch negotiations by outcome",
		},
		[]string{"outcome"},
	)

	AccountChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_account_changes_total",
		Help: "Wallet account change notifications observed",
	})
)
