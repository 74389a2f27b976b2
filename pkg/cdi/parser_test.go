package cdi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXMLParserParsesSegmentsGroupsAndLeaves(t *testing.T) {
	doc := `<cdi>
  <segment name="root" space="251" origin="0">
    <int name="version" size="1" offset="0" min="0" max="10" default="1"/>
    <group name="channel" replication="2" offset="0">
      <int name="gain" size="1" offset="0"/>
      <eventid name="marker" offset="0"/>
      <string name="label" size="8" offset="0"/>
    </group>
  </segment>
</cdi>`

	rep, err := XMLParser{}.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rep.RootSegments, 1)

	seg := rep.RootSegments[0]
	assert.Equal(t, "root", seg.Name())
	assert.Equal(t, 251, seg.Space)
	require.Len(t, seg.Children, 2)

	// Children come back in the document's own declared order — the
	// int "version" first, then the group — since the parser walks
	// raw tokens instead of unmarshaling into per-kind struct slices.
	version, ok := seg.Children[0].(*Integer)
	require.True(t, ok)
	assert.Equal(t, 1, version.Size)
	assert.EqualValues(t, 0, version.Min)
	assert.EqualValues(t, 10, version.Max)
	assert.EqualValues(t, 1, version.Default)

	group, ok := seg.Children[1].(*Group)
	require.True(t, ok)
	assert.Equal(t, 2, group.Replication)
	require.Len(t, group.Children, 3)
	assert.IsType(t, &Integer{}, group.Children[0])
	assert.IsType(t, &EventItem{}, group.Children[1])
	assert.IsType(t, &StringItem{}, group.Children[2])
}

func TestXMLParserPreservesInterleavedDeclarationOrder(t *testing.T) {
	doc := `<cdi>
  <segment name="root" space="1" origin="0">
    <int name="a" size="1" offset="0"/>
    <eventid name="b" offset="0"/>
    <int name="c" size="1" offset="0"/>
    <string name="d" size="4" offset="0"/>
  </segment>
</cdi>`

	rep, err := XMLParser{}.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	seg := rep.RootSegments[0]
	require.Len(t, seg.Children, 4)

	assert.Equal(t, "a", seg.Children[0].Name())
	assert.IsType(t, &Integer{}, seg.Children[0])
	assert.Equal(t, "b", seg.Children[1].Name())
	assert.IsType(t, &EventItem{}, seg.Children[1])
	assert.Equal(t, "c", seg.Children[2].Name())
	assert.IsType(t, &Integer{}, seg.Children[2])
	assert.Equal(t, "d", seg.Children[3].Name())
	assert.IsType(t, &StringItem{}, seg.Children[3])
}

func TestXMLParserCapturesDescriptions(t *testing.T) {
	doc := `<cdi>
  <segment name="root" space="1" origin="0">
    <description>top segment</description>
    <int name="gain" size="1" offset="0">
      <description>gain control</description>
    </int>
  </segment>
</cdi>`

	rep, err := XMLParser{}.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	seg := rep.RootSegments[0]
	assert.Equal(t, "top segment", seg.Description())
	require.Len(t, seg.Children, 1)
	assert.Equal(t, "gain control", seg.Children[0].Description())
}

func TestXMLParserRejectsMalformedDocument(t *testing.T) {
	_, err := XMLParser{}.Parse(strings.NewReader("<cdi><segment"))
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestXMLParserRejectsBadIntegerSizeAttr(t *testing.T) {
	doc := `<cdi><segment name="root" space="1" origin="0">
    <int name="bad" size="not-a-number" offset="0"/>
  </segment></cdi>`
	_, err := XMLParser{}.Parse(strings.NewReader(doc))
	require.Error(t, err)
}
