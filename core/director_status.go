package core

import "time"

// BackendStatus is one backend's health as reported at /lb/status.
type BackendStatus struct {
	URL              string    `json:"url"`
	Healthy          bool      `json:"healthy"`
	ConsecutiveFails int32     `json:"consecutive_fails"`
	LastCheck        time.Time `json:"last_check"`
}

// DirectorStatus is the aggregate status of the traffic director.
type DirectorStatus struct {
	Backends      []BackendStatus `json:"backends"`
	HealthyCount  int             `json:"healthy_count"`
	TotalCount    int             `json:"total_count"`
	UptimeSeconds int64           `json:"uptime_seconds"`
}

// CollectDirectorStatus snapshots the pool for the status endpoint.
func CollectDirectorStatus(pool *BackendPool, startedAt time.Time) DirectorStatus {
	st := DirectorStatus{}
	for _, b := range pool.Backends() {
		st.Backends = append(st.Backends, BackendStatus{
			URL:              b.URL.String(),
			Healthy:          b.Healthy(),
			ConsecutiveFails: b.ConsecutiveFails(),
			LastCheck:        b.LastCheck(),
		})
	}
	st.HealthyCount = pool.HealthyCount()
	st.TotalCount = len(pool.Backends())
	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}
