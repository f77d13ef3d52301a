package cfa

import (
	"fmt"
	"go/token"
)

type NodeKind int

const (
	Normal NodeKind = iota
	FunctionEntry
	FunctionExit
	Target
)

func (k NodeKind) String() string {
	switch k {
	case FunctionEntry:
		return "entry"
	case FunctionExit:
		return "exit"
	case Target:
		return "target"
	}
	return "node"
}

type EdgeKind int

const (
	Blank EdgeKind = iota
	Call
	Return
)

func (k EdgeKind) String() string {
	switch k {
	case Call:
		return "call"
	case Return:
		return "return"
	}
	return "blank"
}

// Node is a program location. Nodes are created through a Function and are
// identified by an ID that is unique within their Graph.
type Node struct {
	ID       int
	Kind     NodeKind
	Function *Function
	Pos      token.Position
	Leaving  []*Edge
	Entering []*Edge
}

func (n *Node) String() string {
	return fmt.Sprintf("N%d", n.ID)
}

func (n *Node) IsTarget() bool {
	return n.Kind == Target
}

// Edge connects two nodes. For Return edges CallSite is the node holding the
// matching Call edge.
type Edge struct {
	From     *Node
	To       *Node
	Kind     EdgeKind
	CallSite *Node
	Label    string
}

func (e *Edge) String() string {
	if e.Label != "" {
		return fmt.Sprintf("%s -%s-> %s", e.From, e.Label, e.To)
	}
	return fmt.Sprintf("%s -%s-> %s", e.From, e.Kind, e.To)
}

type Function struct {
	Name  string
	Entry *Node
	Exit  *Node
	Nodes []*Node

	graph *Graph
}

func (f *Function) String() string {
	return f.Name
}

// NewNode creates a plain node inside f.
func (f *Function) NewNode(pos token.Position) *Node {
	return f.newNode(Normal, pos)
}

// NewTarget creates an error location inside f.
func (f *Function) NewTarget(pos token.Position) *Node {
	return f.newNode(Target, pos)
}

func (f *Function) newNode(kind NodeKind, pos token.Position) *Node {
	n := &Node{
		ID:       len(f.graph.nodes),
		Kind:     kind,
		Function: f,
		Pos:      pos,
	}
	f.graph.nodes = append(f.graph.nodes, n)
	f.Nodes = append(f.Nodes, n)
	return n
}

// CallEdge records a call from caller to callee.
type CallEdge struct {
	Caller, Callee *Function
	Site           *Node
}

// Graph is a control-flow automaton over several functions.
type Graph struct {
	functions []*Function
	byName    map[string]*Function
	nodes     []*Node
	calls     []CallEdge
}

func New() *Graph {
	return &Graph{byName: make(map[string]*Function)}
}

// AddFunction creates a function with fresh entry and exit nodes. Adding a
// name twice returns the existing function.
func (g *Graph) AddFunction(name string) *Function {
	if f, ok := g.byName[name]; ok {
		return f
	}
	f := &Function{Name: name, graph: g}
	f.Entry = f.newNode(FunctionEntry, token.Position{})
	f.Exit = f.newNode(FunctionExit, token.Position{})
	g.functions = append(g.functions, f)
	g.byName[name] = f
	return f
}

func (g *Graph) Function(name string) (*Function, bool) {
	f, ok := g.byName[name]
	return f, ok
}

func (g *Graph) Functions() []*Function {
	return g.functions
}

func (g *Graph) Nodes() []*Node {
	return g.nodes
}

func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

func (g *Graph) Calls() []CallEdge {
	return g.calls
}

// AddEdge adds a blank edge.
func (g *Graph) AddEdge(from, to *Node, label string) *Edge {
	return g.link(&Edge{From: from, To: to, Kind: Blank, Label: label})
}

// AddCall links site to the entry of callee and the exit of callee back to
// returnSite. The return edge remembers site so that call-stack aware domains
// can match it.
func (g *Graph) AddCall(site *Node, callee *Function, returnSite *Node) {
	g.link(&Edge{From: site, To: callee.Entry, Kind: Call, Label: "call " + callee.Name})
	g.link(&Edge{From: callee.Exit, To: returnSite, Kind: Return, CallSite: site, Label: "return " + callee.Name})
	g.calls = append(g.calls, CallEdge{Caller: site.Function, Callee: callee, Site: site})
}

func (g *Graph) link(e *Edge) *Edge {
	e.From.Leaving = append(e.From.Leaving, e)
	e.To.Entering = append(e.To.Entering, e)
	return e
}
