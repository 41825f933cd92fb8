/*
Package metrics defines and registers Harbor's Prometheus metrics and
exposes them over /metrics (via Handler) for scraping.

# Naming

Every metric is prefixed harbor_<noun>_<unit>, e.g.
harbor_ship_create_duration_seconds, harbor_reconciliation_cycles_total,
harbor_proxy_forwards_total. Counters/histograms with a variable
dimension (outcome, route, kind) use a Vec and are labeled at the call
site rather than split into separate metrics.

# Groups

  - Ship: ShipsTotal (by status), ShipsCreatedTotal, ShipsCleanedUpTotal,
    ShipCreateDuration, ShipStopDuration.
  - Resolver: ResolutionsTotal (by outcome: reused/restored/warm_pool/
    created/rejected), ResolutionDuration, CapacityWaitDuration.
  - Reconciler: ReconciliationDuration, ReconciliationCyclesTotal,
    DriftRepairsTotal (by kind: promoted/demoted/orphan_expired).
  - API: APIRequestsTotal, APIRequestDuration, both labeled by route.
  - Proxy: ProxyForwardsTotal, ProxyForwardDuration (by kind: exec/
    upload/download), TerminalSessionsActive.

# Timer

NewTimer captures a start time; ObserveDuration/ObserveDurationVec
record the elapsed time against a histogram when the operation
finishes, used throughout pkg/reconciler and pkg/proxy:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ShipCreateDuration)

# See Also

  - pkg/api - serves Handler() at /metrics and records APIRequests*
  - pkg/reconciler, pkg/resolver, pkg/proxy, pkg/scheduler - emitters
*/
package metrics
