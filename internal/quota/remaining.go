package quota

// Usage reports one quota dimension.
type Usage struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage,omitempty"`
}

// Remaining summarizes what a session has left.
type Remaining struct {
	Storage  Usage `json:"storage"`
	Images   Usage `json:"images"`
	Projects Usage `json:"projects"`
}

// Remaining returns the session's quota headroom.
func (m *Manager) Remaining(id string) (Remaining, error) {
	st, err := m.stats.Stats(id)
	if err != nil {
		return Remaining{}, err
	}
	storage := Usage{
		Used:      st.TotalSize,
		Limit:     m.limits.MaxTotalStorage,
		Remaining: m.limits.MaxTotalStorage - st.TotalSize,
	}
	if storage.Limit > 0 {
		storage.Percentage = float64(st.TotalSize) / float64(storage.Limit) * 100
	}
	return Remaining{
		Storage:  storage,
		Images:   count(st.ImageCount, m.limits.MaxImages),
		Projects: count(st.ProjectCount, m.limits.MaxProjects),
	}, nil
}

func count(used, limit int) Usage {
	return Usage{Used: int64(used), Limit: int64(limit), Remaining: int64(limit - used)}
}
