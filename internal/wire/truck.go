package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.bryk.io/x/cargonetsim/errors"
)

// TruckMessageType identifies the first classification segment of a truck
// simulator slash-delimited message.
type TruckMessageType int

// Recognized truck message types.
const (
	TruckSync      TruckMessageType = 1
	TruckTripsInfo TruckMessageType = 2
)

// TruckMessageCode identifies the second classification segment of a truck
// simulator slash-delimited message.
type TruckMessageCode int

// Recognized truck message codes.
const (
	TruckSyncReq  TruckMessageCode = 1
	TruckSyncGo   TruckMessageCode = 2
	TruckSyncEnd  TruckMessageCode = 3
	TruckTripEnd  TruckMessageCode = 1
	TruckTripInfo TruckMessageCode = 2
)

// minTruckFields is the minimum number of '/' delimited segments a valid
// truck message body must carry; messages shorter than this are dropped.
const minTruckFields = 9

// TruckMessage is a parsed slash-delimited message exchanged with a truck
// simulator. Body fields are addressed positionally:
//
//	parts[0] request id
//	parts[2] message type
//	parts[3] message code
//	parts[8] payload (JSON for TRIPS_INFO, scalar for SYNC)
//	parts[9] simulation horizon (SYNC_REQ only)
type TruckMessage struct {
	RequestID int
	Type      TruckMessageType
	Code      TruckMessageCode
	Raw       []string
}

// ParseTruckMessage splits a raw message body on '/' and extracts the fields
// every truck client needs before dispatching on message type/code.
func ParseTruckMessage(body string) (TruckMessage, error) {
	parts := strings.Split(body, "/")
	if len(parts) < minTruckFields {
		return TruckMessage{}, errors.New("truck message too short")
	}
	msgType, err := strconv.Atoi(parts[2])
	if err != nil {
		return TruckMessage{}, errors.Wrap(err, "invalid truck message type")
	}
	msgCode, err := strconv.Atoi(parts[3])
	if err != nil {
		return TruckMessage{}, errors.Wrap(err, "invalid truck message code")
	}
	requestID, _ := strconv.Atoi(parts[0])
	return TruckMessage{
		RequestID: requestID,
		Type:      TruckMessageType(msgType),
		Code:      TruckMessageCode(msgCode),
		Raw:       parts,
	}, nil
}

// SyncTimes extracts the reported simulation time and horizon carried by a
// SYNC/SYNC_REQ message.
func (m TruckMessage) SyncTimes() (simTime, horizon float64, err error) {
	if len(m.Raw) <= 9 {
		return 0, 0, errors.New("truck sync message missing horizon field")
	}
	simTime, err = strconv.ParseFloat(m.Raw[8], 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid simulation time")
	}
	horizon, err = strconv.ParseFloat(m.Raw[9], 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid simulation horizon")
	}
	return simTime, horizon, nil
}

// TripPayload is the JSON payload carried by TRIPS_INFO messages, covering
// both TRIP_END and TRIP_INFO codes.
type TripPayload struct {
	TripID           string  `json:"Trip_ID"`
	Origin           string  `json:"Origin"`
	Destination      string  `json:"Destination"`
	TripDistance     float64 `json:"Trip_Distance"`
	FuelConsumption  float64 `json:"Fuel_Consumption"`
	TravelTime       float64 `json:"Travel_Time"`
}

// Payload decodes the JSON payload segment of a TRIPS_INFO message.
func (m TruckMessage) Payload() (TripPayload, error) {
	if len(m.Raw) <= 8 {
		return TripPayload{}, errors.New("truck message missing payload field")
	}
	var p TripPayload
	if err := json.Unmarshal([]byte(m.Raw[8]), &p); err != nil {
		return TripPayload{}, errors.Wrap(err, "invalid truck trip payload")
	}
	return p, nil
}

// FormatSyncGo builds the "go ahead" message a client sends back to a truck
// simulator after processing a SYNC_REQ.
func FormatSyncGo(requestID int, simTime, horizon float64) string {
	return formatSync(requestID, TruckSyncGo, simTime, horizon)
}

// FormatSyncEnd builds the end-of-simulation message sent to a truck
// simulator.
func FormatSyncEnd(requestID int, simTime float64) string {
	return formatSync(requestID, TruckSyncEnd, simTime, 0)
}

func formatSync(requestID int, code TruckMessageCode, simTime, horizon float64) string {
	fields := make([]string, minTruckFields+1)
	fields[0] = strconv.Itoa(requestID)
	fields[2] = strconv.Itoa(int(TruckSync))
	fields[3] = strconv.Itoa(int(code))
	fields[8] = strconv.FormatFloat(simTime, 'f', -1, 64)
	fields[9] = strconv.FormatFloat(horizon, 'f', -1, 64)
	return strings.Join(fields, "/")
}

// FormatAddTrip builds an "add trip" message instructing a truck simulator
// to schedule a new trip over the given link path.
func FormatAddTrip(msgCounter, tripID int, originID, destinationID int, startTime float64, linkIDs []int) string {
	links := make([]string, len(linkIDs))
	for i, id := range linkIDs {
		links[i] = strconv.Itoa(id)
	}
	fields := make([]string, minTruckFields)
	fields[0] = strconv.Itoa(msgCounter)
	fields[2] = strconv.Itoa(int(TruckTripsInfo))
	fields[3] = strconv.Itoa(int(TruckTripInfo))
	fields[8] = fmt.Sprintf("%d/%d/%d/%s/%s",
		tripID, originID, destinationID,
		strconv.FormatFloat(startTime, 'f', -1, 64),
		strings.Join(links, ","))
	return strings.Join(fields, "/")
}
