package truck

import "sync"

// ContainerStore assigns container batches to vehicles so completed trips
// can hand their cargo over to terminal unloading.
type ContainerStore struct {
	mu       sync.RWMutex
	byVehicle map[string][]map[string]interface{}
}

// NewContainerStore returns an empty store.
func NewContainerStore() *ContainerStore {
	return &ContainerStore{byVehicle: make(map[string][]map[string]interface{})}
}

// AssignToVehicle appends containers to a vehicle's cargo.
func (s *ContainerStore) AssignToVehicle(vehicleID string, containers []map[string]interface{}) {
	s.mu.Lock()
	s.byVehicle[vehicleID] = append(s.byVehicle[vehicleID], containers...)
	s.mu.Unlock()
}

// VehicleContainers returns the containers currently assigned to a vehicle.
func (s *ContainerStore) VehicleContainers(vehicleID string) []map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]interface{}, len(s.byVehicle[vehicleID]))
	copy(out, s.byVehicle[vehicleID])
	return out
}

// Unassign removes and returns a vehicle's cargo, used when a trip ends
// and its containers move to a terminal.
func (s *ContainerStore) Unassign(vehicleID string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	containers := s.byVehicle[vehicleID]
	delete(s.byVehicle, vehicleID)
	return containers
}

// Clear drops every assignment.
func (s *ContainerStore) Clear() {
	s.mu.Lock()
	s.byVehicle = make(map[string][]map[string]interface{})
	s.mu.Unlock()
}
