package truck

import "go.bryk.io/x/cargonetsim/internal/wire"

// State tracks one trip through its lifecycle, updated from TRIP_INFO and
// TRIP_END messages.
type State struct {
	NetworkName     string
	TripID          string
	Origin          string
	Destination     string
	Distance        float64
	FuelConsumption float64
	TravelTime      float64
	Completed       bool
}

// NewState records a freshly scheduled trip.
func NewState(networkName, tripID, origin, destination string) *State {
	return &State{
		NetworkName: networkName,
		TripID:      tripID,
		Origin:      origin,
		Destination: destination,
	}
}

// UpdateInfo applies an in-progress TRIP_INFO update.
func (s *State) UpdateInfo(p wire.TripPayload) {
	if p.TripDistance > 0 {
		s.Distance = p.TripDistance
	}
	if p.FuelConsumption > 0 {
		s.FuelConsumption = p.FuelConsumption
	}
	if p.TravelTime > 0 {
		s.TravelTime = p.TravelTime
	}
}

// CompleteFrom applies the final TRIP_END payload and marks the trip done.
func (s *State) CompleteFrom(p wire.TripPayload) {
	if p.Origin != "" {
		s.Origin = p.Origin
	}
	if p.Destination != "" {
		s.Destination = p.Destination
	}
	s.Distance = p.TripDistance
	s.FuelConsumption = p.FuelConsumption
	s.TravelTime = p.TravelTime
	s.Completed = true
}
