package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootNode(t *testing.T) {
	e := NewEngine()
	root := e.Root()

	assert.Equal(t, KeyRoot, root.Key)
	assert.Equal(t, KindMenu, root.Kind)
	require.Len(t, root.Options, 6)
	assert.Equal(t, KeyTransferAgent, root.Options[len(root.Options)-1].Key)
}

func TestResolveMenuNavigation(t *testing.T) {
	e := NewEngine()

	products := e.Resolve("products")
	assert.Equal(t, "products", products.Key)
	assert.Equal(t, KindMenu, products.Kind)
	require.Len(t, products.Options, 5)

	info := e.Resolve("products_sizing")
	assert.Equal(t, KindInfo, info.Kind)
	assert.NotEmpty(t, info.Body)
}

func TestResolveBackToMain(t *testing.T) {
	e := NewEngine()

	// back_main returns to the root from any depth
	e.Resolve("products")
	e.Resolve("products_warranty")
	node := e.Resolve(KeyBackMain)
	assert.Equal(t, KeyRoot, node.Key)
}

func TestResolveTransfer(t *testing.T) {
	e := NewEngine()

	node := e.Resolve(KeyTransferAgent)
	assert.Equal(t, KindTransfer, node.Kind)
	assert.Empty(t, node.Options)
}

func TestResolveUnknownFallsBackToRoot(t *testing.T) {
	e := NewEngine()

	node := e.Resolve("no_such_option")
	assert.Equal(t, KeyRoot, node.Key)
}

// Every option of every node must resolve to a real node so the tree never
// dead-ends.
func TestTreeIsTotal(t *testing.T) {
	e := NewEngine()

	visited := map[string]bool{}
	queue := []Node{e.Root()}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node.Key] {
			continue
		}
		visited[node.Key] = true

		for _, opt := range node.Options {
			next := e.Resolve(opt.Key)
			require.NotEmpty(t, next.Key, "option %q of node %q resolves to nothing", opt.Key, node.Key)
			queue = append(queue, next)
		}
	}
	assert.True(t, visited[KeyRoot])
	assert.True(t, visited["products"])
}
