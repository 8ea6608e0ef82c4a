// internal/room/messages_test.go
package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerMsgEnvelopeKeys pins the externally tagged envelope keys clients
// switch on. Only the populated variant may appear in the serialized form.
func TestServerMsgEnvelopeKeys(t *testing.T) {
	data, err := json.Marshal(errorMsg("Invalid card"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ErrorMsg":"Invalid card"}`, string(data))

	data, err = json.Marshal(ServerMsg{InvalidRoomID: &InvalidRoomIDMsg{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"InvalidRoomId":{}}`, string(data))
}

func TestClientMsgEnvelopeDecoding(t *testing.T) {
	var msg ClientMsg
	require.NoError(t, json.Unmarshal([]byte(`{"JoinRoom":{"room_id":"AbCd","name":"alice"}}`), &msg))
	require.NotNil(t, msg.JoinRoom)
	assert.Equal(t, "AbCd", msg.JoinRoom.RoomID)
	assert.Equal(t, "alice", msg.JoinRoom.Name)

	msg = ClientMsg{}
	require.NoError(t, json.Unmarshal([]byte(`{"Vote":{"card":"forest.jpg"}}`), &msg))
	require.NotNil(t, msg.Vote)
	assert.Nil(t, msg.JoinRoom)
	assert.Equal(t, "forest.jpg", msg.Vote.Card)
}
