package config

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// NodeMetadataKey is the gRPC metadata header carrying a NodeTarget's
// CSV form.
const NodeMetadataKey = "x-talos-node"

// targetArity distinguishes the three NodeTarget shapes: none, a single
// node, or several.
type targetArity int

const (
	arityNone targetArity = iota
	aritySingle
	arityMultiple
)

// NodeTarget selects which cluster member(s) should service a call. A
// single struct carrying its own arity tag, built through the three
// constructors below.
type NodeTarget struct {
	arity targetArity
	nodes []string
}

// NoTarget is the default target: the connected endpoint handles the call
// itself, no x-talos-node header is sent.
func NoTarget() NodeTarget { return NodeTarget{arity: arityNone} }

// SingleTarget targets exactly one node.
func SingleTarget(node string) NodeTarget {
	return NodeTarget{arity: aritySingle, nodes: []string{node}}
}

// MultipleTargets targets several nodes at once (cluster-wide operations).
func MultipleTargets(nodes ...string) NodeTarget {
	if len(nodes) == 0 {
		return NoTarget()
	}
	return NodeTarget{arity: arityMultiple, nodes: append([]string(nil), nodes...)}
}

// NodeTargetFromCSV parses a comma-separated node list, collapsing the
// 0/1/2+ arities to none/single/multiple.
func NodeTargetFromCSV(csv string) NodeTarget {
	nodes := splitTrimNonEmpty(csv)
	switch len(nodes) {
	case 0:
		return NoTarget()
	case 1:
		return SingleTarget(nodes[0])
	default:
		return MultipleTargets(nodes...)
	}
}

func (t NodeTarget) IsNone() bool     { return t.arity == arityNone }
func (t NodeTarget) IsSingle() bool   { return t.arity == aritySingle }
func (t NodeTarget) IsMultiple() bool { return t.arity == arityMultiple }

// Nodes returns the target node list, empty for NoTarget.
func (t NodeTarget) Nodes() []string { return append([]string(nil), t.nodes...) }

// First returns the first target node, or "" for NoTarget.
func (t NodeTarget) First() string {
	if len(t.nodes) == 0 {
		return ""
	}
	return t.nodes[0]
}

// ToCSV renders the comma-joined form carried in the x-talos-node header;
// "" for NoTarget (the symmetric inverse of NodeTargetFromCSV).
func (t NodeTarget) ToCSV() string {
	if t.arity == arityNone {
		return ""
	}
	return strings.Join(t.nodes, ",")
}

// ApplyToOutgoingContext attaches the x-talos-node metadata header to ctx
// when t targets specific nodes; NoTarget leaves ctx untouched rather
// than sending an empty header.
func (t NodeTarget) ApplyToOutgoingContext(ctx context.Context) context.Context {
	csv := t.ToCSV()
	if csv == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, NodeMetadataKey, csv)
}
