package domain

// ServiceStatus is the simulated health of a named service.
type ServiceStatus string

const (
	StatusOperational ServiceStatus = "Operational"
	StatusDegraded    ServiceStatus = "Degraded"
	StatusDown        ServiceStatus = "Down"
	StatusActive      ServiceStatus = "Active"
)

// Names of the simulated services.
const (
	ServiceAPIGateway    = "API Gateway"
	ServiceDPI           = "DPI Identity"
	ServiceDLT           = "DLT Settlement"
	ServiceAIPricing     = "AI Pricing Engine"
	ServiceQuantum       = "Quantum Optimizer"
	ServiceSwarm         = "Swarm Intelligence"
	ServiceOrderMatching = "Order Matching"
	ServiceAIS           = "AIS Security"
)

// SystemMetric is the telemetry snapshot of one service. The optional
// counters are only populated by scenarios that use them.
type SystemMetric struct {
	Service         string        `json:"service"`
	Status          ServiceStatus `json:"status"`
	Value           float64       `json:"value"`
	Unit            string        `json:"unit"`
	ErrorRate       *float64      `json:"errorRate,omitempty"`
	BlockedRequests *int          `json:"blockedRequests,omitempty"`
	PendingQueue    *int          `json:"pendingQueue,omitempty"`
	BufferSize      *int          `json:"bufferSize,omitempty"`
}

// Scenario selects how the simulated infrastructure behaves.
type Scenario string

const (
	ScenarioNormal             Scenario = "normal"
	ScenarioVolatilitySpike    Scenario = "volatility_spike"
	ScenarioAPIGatewayOverload Scenario = "api_gateway_overload"
	ScenarioDLTCongestion      Scenario = "dlt_congestion"
	ScenarioDPIOutage          Scenario = "dpi_outage"
	ScenarioContingency        Scenario = "contingency"
)

// Scenarios lists every selectable scenario.
var Scenarios = []Scenario{
	ScenarioNormal,
	ScenarioVolatilitySpike,
	ScenarioAPIGatewayOverload,
	ScenarioDLTCongestion,
	ScenarioDPIOutage,
	ScenarioContingency,
}

// ParseScenario returns the scenario named s.
func ParseScenario(s string) (Scenario, bool) {
	for _, sc := range Scenarios {
		if string(sc) == s {
			return sc, true
		}
	}
	return "", false
}
