package cdi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
	"github.com/openlcb-go/cdicore/transport/memtransport"
)

const testCDI = `<cdi>
  <segment name="root" space="251" origin="0">
    <group name="channel" replication="2" offset="0">
      <int name="gain" size="1" offset="0"/>
      <string name="label" size="8" offset="0"/>
    </group>
  </segment>
</cdi>`

func buildDemoNode() (*memtransport.Transport, transport.NodeID) {
	tp := memtransport.New()
	node := memtransport.NewNode()
	node.SetSpace(DefaultCDISpace, append([]byte(testCDI), 0x00))
	node.SetSpace(251, make([]byte, 32))
	const id transport.NodeID = 1
	tp.AddNode(id, node)
	return tp, id
}

func TestOrchestratorReachesCacheComplete(t *testing.T) {
	tp, node := buildDemoNode()

	var states []State
	var root *Root
	orch := New(node, tp, XMLParser{}, 0,
		WithStateObserver(func(sc StateChange) { states = append(states, sc.State) }),
		WithRepresentationObserver(func(r *Root) { root = r }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	orch.Start(ctx)

	require.Eventually(t, func() bool { return orch.State() == StateCacheComplete || orch.State() == StateFailed }, time.Second, time.Millisecond)
	require.Equal(t, StateCacheComplete, orch.State())

	require.NotNil(t, root)
	entry, ok := root.ByKey("root.channel(0).gain")
	require.True(t, ok)
	gain := entry.(*IntegerEntry)
	assert.Equal(t, uint64(0), NewIntegerAccessor(gain, orch).Get())

	assert.Contains(t, states, StateFetching)
	assert.Contains(t, states, StateParsing)
	assert.Contains(t, states, StateReady)
	assert.Contains(t, states, StatePrefilling)
	assert.Contains(t, states, StateCacheComplete)
}

func TestOrchestratorFailsOnParseError(t *testing.T) {
	tp := memtransport.New()
	node := memtransport.NewNode()
	node.SetSpace(DefaultCDISpace, append([]byte("not valid xml <<<"), 0x00))
	const id transport.NodeID = 1
	tp.AddNode(id, node)

	var failMsg string
	orch := New(id, tp, XMLParser{}, 0,
		WithStateObserver(func(sc StateChange) {
			if sc.State == StateFailed {
				failMsg = sc.Message
			}
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	orch.Start(ctx)

	require.Eventually(t, func() bool { return orch.State() == StateFailed }, time.Second, time.Millisecond)
	assert.NotEmpty(t, failMsg)
}

func TestOrchestratorSurvivesStaggeredPrefillResponses(t *testing.T) {
	tp, node := buildDemoNode()
	tp.Delay = 10 * time.Millisecond

	done := make(chan struct{})
	orch := New(node, tp, XMLParser{}, 0,
		WithCacheCompleteObserver(func() { close(done) }),
	)
	orch.Start(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cache complete observer never fired under staggered transport delay")
	}
	assert.Equal(t, StateCacheComplete, orch.State())
}
