package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// QuestMetrics captures contract activity for the NFT and campaign modules.
type QuestMetrics struct {
	mints       *prometheus.CounterVec
	campaigns   *prometheus.CounterVec
	settlements *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
	gated       *prometheus.CounterVec
}

var (
	questOnce     sync.Once
	questRegistry *QuestMetrics
)

// Quest returns the lazily-initialised contract metrics registry.
func Quest() *QuestMetrics {
	questOnce.Do(func() {
		questRegistry = &QuestMetrics{
			mints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "nft",
				Name:      "mints_total",
				Help:      "Count of issued membership NFTs by tier and mint path.",
			}, []string{"tier", "path"}),
			campaigns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "campaign",
				Name:      "transitions_total",
				Help:      "Count of campaign lifecycle transitions by kind.",
			}, []string{"kind"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "campaign",
				Name:      "settlements_total",
				Help:      "Count of batch settlement attempts by outcome.",
			}, []string{"outcome"}),
			skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "campaign",
				Name:      "settlement_skipped_total",
				Help:      "Campaigns skipped inside otherwise successful batch settlements, by reason.",
			}, []string{"reason"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "ledger",
				Name:      "withdrawals_total",
				Help:      "Count of successful withdrawals by module and asset.",
			}, []string{"module", "asset"}),
			gated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "guard",
				Name:      "approvals_consumed_total",
				Help:      "Count of guard approvals consumed by gated operations.",
			}, []string{"module", "operation"}),
		}
		prometheus.MustRegister(
			questRegistry.mints,
			questRegistry.campaigns,
			questRegistry.settlements,
			questRegistry.skipped,
			questRegistry.withdrawals,
			questRegistry.gated,
		)
	})
	return questRegistry
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *QuestMetrics) ObserveMint(tier uint64, path string) {
	if m == nil {
		return
	}
	m.mints.WithLabelValues(strconv.FormatUint(tier, 10), label(path)).Inc()
}

func (m *QuestMetrics) ObserveCampaign(kind string) {
	if m == nil {
		return
	}
	m.campaigns.WithLabelValues(label(kind)).Inc()
}

// ObserveSettlement records a batch outcome. Outcomes should be stable strings
// such as "settled", "invalid_nonce" or "bad_signature".
func (m *QuestMetrics) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(label(outcome)).Inc()
}

func (m *QuestMetrics) ObserveSkipped(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.skipped.WithLabelValues(label(reason)).Add(float64(count))
}

func (m *QuestMetrics) ObserveWithdrawal(module, asset string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(label(module), label(asset)).Inc()
}

func (m *QuestMetrics) ObserveGated(module, operation string) {
	if m == nil {
		return
	}
	m.gated.WithLabelValues(label(module), label(operation)).Inc()
}
