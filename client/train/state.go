package train

// State is the latest authoritative snapshot of one train as reported by
// the simulator.
type State struct {
	TrainID            string
	TravelledDistance  float64
	CurrentSpeed       float64
	CurrentAcceleration float64
	EnergyConsumption  float64
	CarbonEmitted      float64
	ReachedDestination bool
	TripTime           float64
	ContainersCount    int

	metrics map[string]interface{}
}

// StateFromMap decodes a train state payload as delivered by the simulator.
func StateFromMap(data map[string]interface{}) *State {
	s := &State{metrics: data}
	s.TrainID = asString(data["trainUserID"])
	if s.TrainID == "" {
		s.TrainID = asString(data["trainID"])
	}
	s.TravelledDistance = asFloat(data["travelledDistance"])
	s.CurrentSpeed = asFloat(data["currentSpeed"])
	s.CurrentAcceleration = asFloat(data["currentAcceleration"])
	s.EnergyConsumption = asFloat(data["energyConsumption"])
	s.CarbonEmitted = asFloat(data["carbonDioxideEmitted"])
	s.ReachedDestination = asBool(data["reachedDestination"])
	s.TripTime = asFloat(data["tripTime"])
	s.ContainersCount = int(asFloat(data["containersCount"]))
	return s
}

// Metric returns the raw value of a named metric from the original payload.
func (s *State) Metric(name string) (interface{}, bool) {
	v, ok := s.metrics[name]
	return v, ok
}

// SimulationResults holds the per-network outcome of a finished train run:
// trains processed, containers moved and the aggregate consumption figures.
type SimulationResults struct {
	TrainsProcessed  int
	ContainersMoved  int
	TotalDistance    float64
	TotalEnergyUsed  float64
	TotalCarbonEmitted float64
	Raw              map[string]interface{}
}

// ResultsFromMap decodes a per-network results payload.
func ResultsFromMap(data map[string]interface{}) *SimulationResults {
	return &SimulationResults{
		TrainsProcessed:    int(asFloat(data["trainsProcessed"])),
		ContainersMoved:    int(asFloat(data["containersMoved"])),
		TotalDistance:      asFloat(data["totalDistance"]),
		TotalEnergyUsed:    asFloat(data["totalEnergyConsumption"]),
		TotalCarbonEmitted: asFloat(data["totalCarbonDioxideEmitted"]),
		Raw:                data,
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
