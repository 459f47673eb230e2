// Package graph validates and loads workflow graph definitions.
//
// A graph is a declarative set of nodes and conditioned edges with a single
// entry node, named entry points for resumption, and declared terminal and
// pause nodes. Definitions are authored in YAML, either standalone or
// bundled with the goal they pursue. Validate distinguishes fatal structural
// errors, which make a graph unexecutable, from warnings such as unreachable
// nodes.
package graph
