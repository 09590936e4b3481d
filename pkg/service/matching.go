package service

import (
	"sort"

	"github.com/avizh98/gofor/pkg/geo"
	"github.com/avizh98/gofor/pkg/models"
)

// DefaultSearchRadiusMeters is used when a discovery query does not name
// a radius.
const DefaultSearchRadiusMeters = 5000

// HelperMatch pairs a helper snapshot with its distance from a task's
// pickup point.
type HelperMatch struct {
	Helper     models.HelperSnapshot `json:"helper"`
	DistanceKm float64               `json:"distance"`
}

// NearbyTasksForHelper returns pending tasks within radiusMeters of the
// helper's position, asap tasks before scheduled ones and newest first
// within each urgency. Tasks the helper has declined are excluded.
func (s *TaskService) NearbyTasksForHelper(helperID string, p models.GeoPoint, radiusMeters float64) ([]models.Task, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultSearchRadiusMeters
	}
	tasks, err := s.store.TasksWithinRadius(p, radiusMeters, helperID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// NearbyHelpersForTask returns eligible helpers within radiusMeters of
// the point, closest first. Used by operational tooling and future
// dispatch.
func (s *TaskService) NearbyHelpersForTask(p models.GeoPoint, radiusMeters float64) ([]HelperMatch, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultSearchRadiusMeters
	}
	helpers, err := s.directory.ListAvailableHelpers()
	if err != nil {
		return nil, err
	}
	// Sort on the exact distance; DistanceKm is rounded for display and
	// would collapse helpers within the same 100 m into one bucket.
	type scored struct {
		match  HelperMatch
		meters float64
	}
	candidates := []scored{}
	for _, h := range helpers {
		if !h.Eligible() {
			continue
		}
		meters := geo.DistanceMeters(p, h.Location)
		if meters > radiusMeters {
			continue
		}
		candidates = append(candidates, scored{
			match:  HelperMatch{Helper: h, DistanceKm: geo.RoundKm(meters / 1000)},
			meters: meters,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].meters < candidates[j].meters
	})
	matches := make([]HelperMatch, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, c.match)
	}
	return matches, nil
}
