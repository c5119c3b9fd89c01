package configman

import "fmt"

// aggregate evaluates every Aggregation in the tree. Sub-namespaces are
// finished before the aggregations of their parent, and aggregations of one
// Namespace run in declaration order, each seeing the results of the ones
// before it.
func aggregate(root *Namespace, tagName string) error {
	return aggregateNamespace(root, root, "", tagName)
}

func aggregateNamespace(root, ns *Namespace, prefix, tagName string) error {
	for key, node := range ns.Entries() {
		if child, ok := node.(*Namespace); ok {
			if err := aggregateNamespace(root, child, joinPath(prefix, key), tagName); err != nil {
				return err
			}
		}
	}

	for key, node := range ns.Entries() {
		agg, ok := node.(*Aggregation)
		if !ok {
			continue
		}
		path := joinPath(prefix, key)
		if agg.Fn == nil {
			return &AggregationError{Path: path, Err: fmt.Errorf("no function")}
		}
		global := configFromTree(root, tagName)
		local := configFromTree(ns, tagName)
		v, err := agg.Fn(global, local, agg.Args)
		if err != nil {
			return &AggregationError{Path: path, Err: err}
		}
		agg.Value = v
		agg.evaluated = true
	}
	return nil
}
