package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/agent"
)

func pushOne(t *testing.T, data []byte) shown {
	t.Helper()

	a, display := newAgent(t, "http://localhost:5000")
	a.HandlePush(context.Background(), agent.PushEvent{Data: data})
	a.Wait()

	got := display.Shown()
	require.Len(t, got, 1, "every push shows exactly one notification")
	return got[0]
}

func TestPushWithoutDataUsesDefaults(t *testing.T) {
	n := pushOne(t, nil)

	assert.Equal(t, agent.DefaultTitle, n.Title)
	assert.Equal(t, agent.DefaultBody, n.Options.Body)
	assert.Equal(t, agent.DefaultIcon, n.Options.Icon)
	assert.Equal(t, agent.DefaultBadge, n.Options.Badge)
	assert.Equal(t, []int{100, 50, 100}, n.Options.Vibrate)
	require.Len(t, n.Options.Actions, 2)
	assert.Equal(t, agent.ActionExplore, n.Options.Actions[0].Action)
	assert.Equal(t, agent.ActionClose, n.Options.Actions[1].Action)
	assert.Equal(t, fixedNow.UnixMilli(), n.Options.Data["dateOfArrival"])
	assert.Equal(t, 1, n.Options.Data["primaryKey"])
}

func TestPushWithUnparseablePayloadFallsBackToText(t *testing.T) {
	n := pushOne(t, []byte("not json{"))

	assert.Equal(t, agent.DefaultTitle, n.Title)
	assert.Equal(t, "not json{", n.Options.Body)
	assert.Len(t, n.Options.Actions, 2)
}

func TestPushWithNonObjectJSONIsText(t *testing.T) {
	n := pushOne(t, []byte(`"quoted"`))

	assert.Equal(t, agent.DefaultTitle, n.Title)
	assert.Equal(t, `"quoted"`, n.Options.Body)
}

func TestPushWithEmptyTextKeepsDefaultBody(t *testing.T) {
	n := pushOne(t, []byte{})

	assert.Equal(t, agent.DefaultTitle, n.Title)
	assert.Equal(t, agent.DefaultBody, n.Options.Body)
}

func TestPushWithStructuredPayloadOverridesAndMerges(t *testing.T) {
	n := pushOne(t, []byte(`{
		"title": "Geofence alert",
		"body": "Phone entered Home",
		"icon": "/static/icons/geofence.png",
		"notification_id": 42,
		"primaryKey": 7
	}`))

	assert.Equal(t, "Geofence alert", n.Title)
	assert.Equal(t, "Phone entered Home", n.Options.Body)
	assert.Equal(t, "/static/icons/geofence.png", n.Options.Icon)
	assert.Equal(t, agent.DefaultBadge, n.Options.Badge)

	assert.Equal(t, float64(42), n.Options.Data["notification_id"])
	assert.Equal(t, float64(7), n.Options.Data["primaryKey"], "payload fields win on conflict")
	assert.Contains(t, n.Options.Data, "dateOfArrival")
	assert.NotContains(t, n.Options.Data, "title")
}

func TestPushWithPartialPayloadKeepsDefaults(t *testing.T) {
	n := pushOne(t, []byte(`{"body": "Only a body", "title": ""}`))

	assert.Equal(t, agent.DefaultTitle, n.Title)
	assert.Equal(t, "Only a body", n.Options.Body)
	assert.Equal(t, agent.DefaultIcon, n.Options.Icon)
}
