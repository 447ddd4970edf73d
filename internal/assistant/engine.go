package assistant

// NodeKind distinguishes how a node is rendered
type NodeKind string

const (
	// KindMenu presents a prompt and a list of options
	KindMenu NodeKind = "menu"
	// KindInfo presents an answer plus navigation options
	KindInfo NodeKind = "info"
	// KindTransfer hands the conversation off to a human agent
	KindTransfer NodeKind = "transfer"
)

// Reserved option keys handled by the engine itself rather than the node table
const (
	// KeyRoot is the welcome node key
	KeyRoot = "welcome"
	// KeyBackMain returns to the welcome node from any depth
	KeyBackMain = "back_main"
	// KeyTransferAgent requests hand-off to a human agent
	KeyTransferAgent = "transfer_agent"
)

// Option is one selectable child of a menu or info node
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Node is one entry in the decision tree. Nodes are pure data, constructed
// once and never mutated.
type Node struct {
	Key     string   `json:"key"`
	Kind    NodeKind `json:"kind"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Options []Option `json:"options,omitempty"`
}

// Engine resolves option keys against an immutable node table. It holds no
// per-conversation state, so a single instance is safe to share across
// concurrent sessions.
type Engine struct {
	nodes map[string]Node
	root  string
}

// NewEngine builds an engine over the default storefront tree
func NewEngine() *Engine {
	return &Engine{nodes: defaultTree(), root: KeyRoot}
}

// Root returns the welcome node
func (e *Engine) Root() Node {
	return e.nodes[e.root]
}

// Resolve maps a selected option key to the next node. It is total: reserved
// keys resolve to the root or a synthetic transfer node, and unknown keys
// fall back to the root instead of failing.
func (e *Engine) Resolve(optionKey string) Node {
	switch optionKey {
	case KeyBackMain:
		return e.Root()
	case KeyTransferAgent:
		return Node{
			Key:   KeyTransferAgent,
			Kind:  KindTransfer,
			Title: "Transferring you to an agent",
			Body:  "You are in the queue for a human agent. An agent will pick up this conversation shortly.",
		}
	}
	if node, ok := e.nodes[optionKey]; ok {
		return node
	}
	return e.Root()
}
