package party

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRegistry(log)
}

func TestRegisterAssignsSequentialIndices(t *testing.T) {
	r := testRegistry()

	for i, id := range []string{"p1", "p2", "p3"} {
		p, err := r.Register(id, "localhost:900"+id, "pk-"+id, "0x"+id, 100)
		require.NoError(t, err)
		require.Equal(t, uint32(i+1), p.Index)
		require.True(t, p.Active)
	}
	require.Equal(t, 3, r.ActiveCount())
}

func TestRegisterDuplicateID(t *testing.T) {
	r := testRegistry()

	_, err := r.Register("p1", "", "", "", 0)
	require.NoError(t, err)
	_, err = r.Register("p1", "", "", "", 0)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	require.Equal(t, 1, r.ActiveCount())
}

func TestDeactivateRetainsRecord(t *testing.T) {
	r := testRegistry()
	_, err := r.Register("p1", "", "", "", 0)
	require.NoError(t, err)
	p2, err := r.Register("p2", "", "", "", 0)
	require.NoError(t, err)

	require.NoError(t, r.Deactivate("p2"))
	require.ErrorIs(t, r.Deactivate("ghost"), ErrPartyNotFound)

	got, err := r.Get("p2")
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, p2.Index, got.Index)

	active := r.ListActive()
	require.Len(t, active, 1)
	require.Equal(t, "p1", active[0].ID)
	require.Len(t, r.ListAll(), 2)

	// The deactivated party's engine stays reachable for historical shares.
	_, ok := r.Engine(p2.Index)
	require.True(t, ok)
}

func TestSelectQuorumLowestIndexFirst(t *testing.T) {
	r := testRegistry()
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		_, err := r.Register(id, "", "", "", 0)
		require.NoError(t, err)
	}

	_, indices, err := r.SelectQuorum(2, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, indices)

	_, indices, err = r.SelectQuorum(2, map[uint32]bool{1: true, 3: true})
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 4}, indices)

	require.NoError(t, r.Deactivate("p1"))
	_, indices, err = r.SelectQuorum(3, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 3, 4}, indices)

	_, _, err = r.SelectQuorum(4, nil)
	require.ErrorIs(t, err, ErrInsufficientParties)
}
