package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerline/go-backend/internal/config"
	"peerline/go-backend/internal/domain"
)

func TestSendMessagePersistsThenBroadcasts(t *testing.T) {
	rt, st := newTestRouter(config.ReconnectReplace, 0)

	alice := &fakeConn{}
	bob := &fakeConn{}
	carol := &fakeConn{}
	for uid, conn := range map[domain.UserID]*fakeConn{"alice": alice, "bob": bob, "carol": carol} {
		_, err := rt.Connect(uid, conn)
		require.NoError(t, err)
	}

	msg, err := rt.SendMessage(context.Background(), "alice", "hello", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	assert.Equal(t, 1, st.count())

	for _, peer := range []*fakeConn{bob, carol} {
		got := peer.eventsOfType(t, EvNewMessage)
		require.Len(t, got, 1)
		rec, ok := got[0]["message"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "hello", rec["content"])
		assert.Equal(t, "alice", rec["senderId"])
		assert.Equal(t, string(msg.ID), rec["id"])
	}
	assert.Empty(t, alice.events(t))
}

func TestSendMessageStoreFailureSuppressesBroadcast(t *testing.T) {
	rt, st := newTestRouter(config.ReconnectReplace, 0)
	st.err = errors.New("disk full")

	_, err := rt.Connect("alice", &fakeConn{})
	require.NoError(t, err)
	bob := &fakeConn{}
	_, err = rt.Connect("bob", bob)
	require.NoError(t, err)

	_, err = rt.SendMessage(context.Background(), "alice", "hello", "", "")
	require.Error(t, err)
	assert.Empty(t, bob.events(t))
}

func TestEndCallPrefersCallID(t *testing.T) {
	rt, _ := newTestRouter(config.ReconnectReplace, 0)

	_, err := rt.Connect("alice", &fakeConn{})
	require.NoError(t, err)
	bob := &fakeConn{}
	_, err = rt.Connect("bob", bob)
	require.NoError(t, err)

	id, err := rt.InitiateCall("alice", "bob", "video", nil)
	require.NoError(t, err)

	rt.EndCall("alice", id, "", "")
	ended := bob.eventsOfType(t, EvCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, string(domain.EndNormal), ended[0]["reason"])
}

func TestEndCallFallsBackToPeerID(t *testing.T) {
	rt, _ := newTestRouter(config.ReconnectReplace, 0)

	alice := &fakeConn{}
	_, err := rt.Connect("alice", alice)
	require.NoError(t, err)
	_, err = rt.Connect("bob", &fakeConn{})
	require.NoError(t, err)

	_, err = rt.InitiateCall("alice", "bob", "video", nil)
	require.NoError(t, err)

	rt.EndCall("bob", "", "alice", "")
	ended := alice.eventsOfType(t, EvCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, string(domain.EndRemoteEnded), ended[0]["reason"])
}

func TestDisconnectTolerant(t *testing.T) {
	rt, _ := newTestRouter(config.ReconnectReplace, 0)

	conn, err := rt.Connect("alice", &fakeConn{})
	require.NoError(t, err)

	rt.Disconnect("alice", conn)
	rt.Disconnect("alice", conn)

	_, ok := rt.Registry.Lookup("alice")
	assert.False(t, ok)
}
