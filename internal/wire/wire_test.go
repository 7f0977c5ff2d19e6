package wire

import (
	"strings"
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestNormalizeEventName(t *testing.T) {
	assert := tdd.New(t)
	assert.Equal("shipreacheddestination", NormalizeEventName("Ship Reached Destination"))
	assert.Equal("shipreacheddestination", NormalizeEventName("shipreacheddestination"))
	assert.Equal("shipreacheddestination", NormalizeEventName(" shipReachedDestination "))
	assert.Equal("", NormalizeEventName("   "))
}

func TestNewCommand(t *testing.T) {
	assert := tdd.New(t)
	cmd := NewCommand(TerminalClient, "add_terminal", map[string]interface{}{"terminal": "A"})
	assert.Equal("add_terminal", cmd.Command)
	assert.Equal(int(TerminalClient), cmd.ClientType)
	assert.NotEmpty(cmd.CommandID)
	assert.NotEmpty(cmd.Timestamp)

	// correlation ids must never repeat
	other := NewCommand(TerminalClient, "add_terminal", nil)
	assert.NotEqual(cmd.CommandID, other.CommandID)
}

func TestInbound(t *testing.T) {
	assert := tdd.New(t)
	assert.True(Inbound{Event: "simulationCreated"}.HasEvent())
	assert.False(Inbound{}.HasEvent())
	assert.True(Inbound{CommandID: "abc"}.HasCommandResult())
	assert.False(Inbound{}.HasCommandResult())
}

func TestParseTruckMessage(t *testing.T) {
	assert := tdd.New(t)

	// valid sync request
	msg, err := ParseTruckMessage("7//1/1/////12.5/100")
	assert.Nil(err)
	assert.Equal(7, msg.RequestID)
	assert.Equal(TruckSync, msg.Type)
	assert.Equal(TruckSyncReq, msg.Code)
	simTime, horizon, err := msg.SyncTimes()
	assert.Nil(err)
	assert.Equal(12.5, simTime)
	assert.Equal(100.0, horizon)

	// too short
	_, err = ParseTruckMessage("1/2/3")
	assert.NotNil(err)

	// non-numeric type
	_, err = ParseTruckMessage("7//x/1/////12.5/100")
	assert.NotNil(err)
}

func TestTruckTripPayload(t *testing.T) {
	assert := tdd.New(t)
	payload := `{"Trip_ID":"10000","Origin":"5","Destination":"9","Trip_Distance":42.5,"Fuel_Consumption":3.1,"Travel_Time":360}`
	msg, err := ParseTruckMessage("3//2/1/////" + payload)
	assert.Nil(err)
	assert.Equal(TruckTripsInfo, msg.Type)

	trip, err := msg.Payload()
	assert.Nil(err)
	assert.Equal("10000", trip.TripID)
	assert.Equal("5", trip.Origin)
	assert.Equal("9", trip.Destination)
	assert.Equal(42.5, trip.TripDistance)
	assert.Equal(360.0, trip.TravelTime)
}

func TestFormatSyncRoundTrip(t *testing.T) {
	assert := tdd.New(t)
	msg, err := ParseTruckMessage(FormatSyncGo(4, 10, 90))
	assert.Nil(err)
	assert.Equal(4, msg.RequestID)
	assert.Equal(TruckSync, msg.Type)
	assert.Equal(TruckSyncGo, msg.Code)
	simTime, horizon, err := msg.SyncTimes()
	assert.Nil(err)
	assert.Equal(10.0, simTime)
	assert.Equal(90.0, horizon)

	end, err := ParseTruckMessage(FormatSyncEnd(4, 99))
	assert.Nil(err)
	assert.Equal(TruckSyncEnd, end.Code)
}

func TestFormatAddTrip(t *testing.T) {
	assert := tdd.New(t)
	msg := FormatAddTrip(1, 10000, 5, 9, 0, []int{11, 12, 13})
	parts := strings.Split(msg, "/")
	assert.Equal("1", parts[0])
	assert.Equal("2", parts[2]) // TRIPS_INFO
	assert.Equal("2", parts[3]) // TRIP_INFO
	assert.Equal("10000", parts[8])
	assert.Contains(msg, "11,12,13")
}
