package scenario

import "github.com/alanyoungcy/bondsim/internal/domain"

// baseline is the healthy reading of every service, in display order.
var baseline = []domain.SystemMetric{
	{Service: domain.ServiceAPIGateway, Status: domain.StatusOperational, Value: 1250, Unit: "req/s"},
	{Service: domain.ServiceDPI, Status: domain.StatusOperational, Value: 180, Unit: "ms"},
	{Service: domain.ServiceDLT, Status: domain.StatusOperational, Value: 2.1, Unit: "s"},
	{Service: domain.ServiceAIPricing, Status: domain.StatusActive, Value: 4200, Unit: "valuations/s"},
	{Service: domain.ServiceQuantum, Status: domain.StatusActive, Value: 12, Unit: "ms"},
	{Service: domain.ServiceSwarm, Status: domain.StatusActive, Value: 256, Unit: "agents"},
	{Service: domain.ServiceOrderMatching, Status: domain.StatusOperational, Value: 850, Unit: "orders/s"},
	{Service: domain.ServiceAIS, Status: domain.StatusOperational, Value: 3, Unit: "threats/min"},
}

func baselineFor(service string) (domain.SystemMetric, bool) {
	for _, m := range baseline {
		if m.Service == service {
			return m, true
		}
	}
	return domain.SystemMetric{}, false
}

func ptr[T any](v T) *T { return &v }

// override mutates the metric of one service under a scenario.
type override func(m *domain.SystemMetric)

// overrides holds the deterministic per-scenario adjustments. Services not
// listed keep their jittered baseline reading.
var overrides = map[domain.Scenario]map[string]override{
	domain.ScenarioNormal: {},
	domain.ScenarioVolatilitySpike: {
		domain.ServiceOrderMatching: func(m *domain.SystemMetric) {
			m.Value = 2600
		},
		domain.ServiceAIPricing: func(m *domain.SystemMetric) {
			m.Value = 9800
		},
		domain.ServiceAPIGateway: func(m *domain.SystemMetric) {
			m.Value = 3100
		},
	},
	domain.ScenarioAPIGatewayOverload: {
		domain.ServiceAPIGateway: func(m *domain.SystemMetric) {
			m.Status = domain.StatusDegraded
			m.Value = 4800
			m.ErrorRate = ptr(12.5)
			m.BlockedRequests = ptr(1840)
		},
		domain.ServiceAIS: func(m *domain.SystemMetric) {
			m.Status = domain.StatusActive
			m.Value = 57
			m.BlockedRequests = ptr(1840)
		},
	},
	domain.ScenarioDLTCongestion: {
		domain.ServiceDLT: func(m *domain.SystemMetric) {
			m.Status = domain.StatusDegraded
			m.Value = 18.5
			m.PendingQueue = ptr(342)
		},
	},
	domain.ScenarioDPIOutage: {
		domain.ServiceDPI: func(m *domain.SystemMetric) {
			m.Status = domain.StatusDown
			m.Value = 0
			m.ErrorRate = ptr(98.7)
		},
	},
	domain.ScenarioContingency: {
		domain.ServiceAIPricing: func(m *domain.SystemMetric) {
			m.Status = domain.StatusDown
			m.Value = 0
		},
		domain.ServiceQuantum: func(m *domain.SystemMetric) {
			m.Status = domain.StatusDown
			m.Value = 0
		},
		domain.ServiceSwarm: func(m *domain.SystemMetric) {
			m.Status = domain.StatusDown
			m.Value = 0
		},
		domain.ServiceOrderMatching: func(m *domain.SystemMetric) {
			m.Status = domain.StatusOperational
			m.Value = 850
			m.BufferSize = ptr(500)
		},
	},
}
