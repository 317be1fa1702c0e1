package flow

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 流程引擎的计数器, 不传 Registerer 时不注册
type Metrics struct {
	Started    prometheus.Counter
	Submitted  *prometheus.CounterVec
	Stalled    prometheus.Counter
	Returned   prometheus.Counter
	Finished   prometheus.Counter
	Transfered prometheus.Counter
	Recalled   prometheus.Counter
	Conflicts  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flow_started_total",
			Help: "Total process instances started",
		}),
		Submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flow_submitted_total",
			Help: "Total records submitted, by opinion",
		}, []string{"opinion"}),
		Stalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flow_sign_stalled_total",
			Help: "Sign submissions that wait for the remaining approvers",
		}),
		Returned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flow_returned_total",
			Help: "Rejections routed back to an earlier node",
		}),
		Finished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flow_finished_total",
			Help: "Total process instances finished",
		}),
		Transfered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flow_transferred_total",
			Help: "Total records handed over to another operator",
		}),
		Recalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flow_recalled_total",
			Help: "Total records recalled by the creator",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flow_advance_conflicts_total",
			Help: "Advancements that could not take the group lock after retries",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Started, m.Submitted, m.Stalled, m.Returned, m.Finished, m.Transfered, m.Recalled, m.Conflicts)
	}
	return m
}
