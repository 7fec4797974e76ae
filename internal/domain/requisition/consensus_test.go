package requisition

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsensus_StrictAndGate(t *testing.T) {
	req := newExpense(t)
	q := req.Quotes[0]

	assert.False(t, HasConsensus(req, q.ID))

	_, err := req.RecordApproval(q.ID, "m1")
	require.NoError(t, err)
	assert.False(t, HasConsensus(req, q.ID))

	current, required, err := ConsensusCount(req, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, 2, required)

	outstanding, err := OutstandingManagers(req, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, outstanding)

	_, err = req.RecordApproval(q.ID, "m2")
	require.NoError(t, err)
	assert.True(t, HasConsensus(req, q.ID))

	outstanding, err = OutstandingManagers(req, q.ID)
	require.NoError(t, err)
	assert.Empty(t, outstanding)
}

func TestConsensus_IgnoresUnassignedApprovals(t *testing.T) {
	req := newExpense(t)
	q := req.Quotes[0]
	q.ManagerApprovals = []string{"m1", "stranger"}

	current, required, err := ConsensusCount(req, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, 2, required)
	assert.False(t, HasConsensus(req, q.ID))
}

func TestConsensus_UnknownQuote(t *testing.T) {
	req := newExpense(t)

	assert.False(t, HasConsensus(req, uuid.New()))
	_, _, err := ConsensusCount(req, uuid.New())
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}
