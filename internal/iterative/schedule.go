package iterative

import "sumbench/internal/config"

// lanes splits the generator fleet into scheduling streams. Cloud
// models all run concurrently; local models share one machine, so the
// big ones run strictly one task at a time and the small ones share a
// narrow pool.
type lanes struct {
	cloud      []config.ModelSpec
	largeLocal []config.ModelSpec
	smallLocal []config.ModelSpec
}

func splitLanes(specs []config.ModelSpec, largeParamsB float64) lanes {
	var l lanes
	for _, spec := range specs {
		switch {
		case !spec.Local:
			l.cloud = append(l.cloud, spec)
		case spec.ParamsB >= largeParamsB:
			l.largeLocal = append(l.largeLocal, spec)
		default:
			l.smallLocal = append(l.smallLocal, spec)
		}
	}
	return l
}
