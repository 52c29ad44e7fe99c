package nearfilter

// promoteClusters sorts pending by angle in place, walks it as a sequence of
// clusters split wherever the circular gap to the previous point exceeds
// threshold, and pushes every point of each cluster holding at least
// MinClusterPoints into out. It returns the number of clusters promoted.
//
// Sub-slices of the sorted input stand in for the working cluster, so the
// walk allocates nothing.
func promoteClusters(pending []Point, threshold float64, out *Batch) int {
	if len(pending) == 0 {
		return 0
	}
	sortByAngle(pending)

	promoted := 0
	start := 0
	for i := 1; i < len(pending); i++ {
		if AngularGap(pending[i].Angle, pending[i-1].Angle) <= threshold {
			continue
		}
		promoted += closeCluster(pending[start:i], out)
		start = i
	}
	promoted += closeCluster(pending[start:], out)
	return promoted
}

func closeCluster(cluster []Point, out *Batch) int {
	if len(cluster) < MinClusterPoints {
		return 0
	}
	for _, p := range cluster {
		out.Push(p)
	}
	return 1
}
