package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
)

const namespace = "outbound_call"

// Metrics holds the collectors for the call flow. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	nodeEntries       *prometheus.CounterVec
	dispatches        *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	crmFailures       *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	activeCalls       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_entries_total",
			Help:      "Number of times a node became current.",
		}, []string{"node"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Action dispatches by node, action and result.",
		}, []string{"node", "action", "result"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Handler latency per action.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"action"}),
		crmFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crm_failures_total",
			Help:      "CRM calls that returned an error.",
		}, []string{"operation"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Knowledge-base answer latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"result"}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls currently connected.",
		}),
	}

	m.registry.MustRegister(
		m.nodeEntries,
		m.dispatches,
		m.dispatchDuration,
		m.crmFailures,
		m.retrievalDuration,
		m.activeCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks binds the engine lifecycle callbacks to the collectors.
func (m *Metrics) Hooks() flow.Hooks {
	return flow.Hooks{
		OnNodeEnter: func(node string) {
			m.nodeEntries.WithLabelValues(node).Inc()
		},
		OnDispatch: func(node, action string, err error, elapsed time.Duration) {
			m.dispatches.WithLabelValues(node, action, resultLabel(err)).Inc()
			m.dispatchDuration.WithLabelValues(action).Observe(elapsed.Seconds())
		},
	}
}

// CallStarted increments the active call gauge and returns the matching
// decrement.
func (m *Metrics) CallStarted() (done func()) {
	m.activeCalls.Inc()
	return m.activeCalls.Dec
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// InstrumentCRM counts failures of every CRM operation.
func (m *Metrics) InstrumentCRM(crm contractx.CRM) contractx.CRM {
	if crm == nil {
		return nil
	}
	return &instrumentedCRM{next: crm, failures: m.crmFailures}
}

type instrumentedCRM struct {
	next     contractx.CRM
	failures *prometheus.CounterVec
}

func (c *instrumentedCRM) SyncCallOutcome(ctx context.Context, contactID string, fields []contractx.NoteField) error {
	return c.count("sync_call_outcome", c.next.SyncCallOutcome(ctx, contactID, fields))
}

func (c *instrumentedCRM) SetLeadStatus(ctx context.Context, contactID string, status contractx.LeadStatus) error {
	return c.count("set_lead_status", c.next.SetLeadStatus(ctx, contactID, status))
}

func (c *instrumentedCRM) CreateDeal(ctx context.Context, contactID string) error {
	return c.count("create_deal", c.next.CreateDeal(ctx, contactID))
}

func (c *instrumentedCRM) count(op string, err error) error {
	if err != nil {
		c.failures.WithLabelValues(op).Inc()
	}
	return err
}

// InstrumentRetriever observes answer latency.
func (m *Metrics) InstrumentRetriever(r contractx.Retriever) contractx.Retriever {
	if r == nil {
		return nil
	}
	return &instrumentedRetriever{next: r, duration: m.retrievalDuration}
}

type instrumentedRetriever struct {
	next     contractx.Retriever
	duration *prometheus.HistogramVec
}

func (r *instrumentedRetriever) Answer(ctx context.Context, question string, recent []contractx.Turn) (string, error) {
	started := time.Now()
	answer, err := r.next.Answer(ctx, question, recent)
	r.duration.WithLabelValues(resultLabel(err)).Observe(time.Since(started).Seconds())
	return answer, err
}
