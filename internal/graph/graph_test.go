package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne/brain/internal/model"
)

func TestGraph_AddNodeIsIdempotent(t *testing.T) {
	g := New("")
	g.AddNode("app:code", model.NodeApplication)
	g.AddNode("app:code", model.NodeApplication)
	assert.Equal(t, 1, g.NodeCount())
}

func TestGraph_AddEdgeIsIdempotent(t *testing.T) {
	g := New("")
	g.AddEdge("session:abc", "app:code", model.RelationUses)
	g.AddEdge("session:abc", "app:code", model.RelationUses)
	assert.Equal(t, 1, g.EdgeCount())
}

func TestGraph_RecordSessionUse(t *testing.T) {
	g := New("")
	g.RecordSessionUse("11111111-1111-1111-1111-111111111111", "code")
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestGraph_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")

	g := New(path)
	g.RecordSessionUse("11111111-1111-1111-1111-111111111111", "code")
	g.RecordMentions("11111111-1111-1111-1111-111111111111", "Apollo")
	require.NoError(t, g.Persist())

	reloaded := New(path)
	assert.Equal(t, g.NodeCount(), reloaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), reloaded.EdgeCount())
}

func TestGraph_PersistNoopWithoutPath(t *testing.T) {
	g := New("")
	require.NoError(t, g.Persist())
}
