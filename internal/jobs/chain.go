package jobs

// ChainDuration sums DurationSeconds along the parent chain ending at id.
// Missing ancestors stop the walk; cycles are cut at the first repeat.
func ChainDuration(r *Registry, id string) float64 {
	var total float64
	seen := make(map[string]struct{})
	for id != "" {
		if _, ok := seen[id]; ok {
			break
		}
		seen[id] = struct{}{}
		job, ok := r.Get(id)
		if !ok {
			break
		}
		total += job.DurationSeconds
		id = job.ParentJobID
	}
	return total
}

// Lineage returns the ids from the root ancestor down to id.
func Lineage(r *Registry, id string) []string {
	var chain []string
	seen := make(map[string]struct{})
	for id != "" {
		if _, ok := seen[id]; ok {
			break
		}
		seen[id] = struct{}{}
		job, ok := r.Get(id)
		if !ok {
			break
		}
		chain = append([]string{job.ID}, chain...)
		id = job.ParentJobID
	}
	return chain
}
