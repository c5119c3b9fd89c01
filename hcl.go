package configman

import (
	"fmt"
	"io"
	"math/big"
	"reflect"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// parseHCL reads native HCL syntax. Attributes are values; a block addresses
// the Namespace named by its type followed by its labels.
func parseHCL(data []byte, name string) (map[string]any, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected HCL body type %T", file.Body)
	}
	values := make(map[string]any)
	if err := hclBodyValues(body, "", values); err != nil {
		return nil, err
	}
	return nestFlat(values), nil
}

func hclBodyValues(body *hclsyntax.Body, prefix string, values map[string]any) error {
	for name, attr := range body.Attributes {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("attribute %s: %w", joinPath(prefix, name), diags)
		}
		native, err := ctyToNative(v)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", joinPath(prefix, name), err)
		}
		values[joinPath(prefix, name)] = native
	}
	for _, block := range body.Blocks {
		path := joinPath(prefix, strings.Join(append([]string{block.Type}, block.Labels...), "."))
		if err := hclBodyValues(block.Body, path, values); err != nil {
			return err
		}
	}
	return nil
}

// ctyToNative converts a cty.Value to its natural Go counterpart. Whole
// numbers become int64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		if bf := v.AsBigFloat(); bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert cty.Number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, val := it.Element()
			native, err := ctyToNative(val)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, val := it.Element()
			native, err := ctyToNative(val)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			m[key.AsString()] = native
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
}

// nativeToCty converts the scalar forms produced by optionDump.
func nativeToCty(v any) cty.Value {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return cty.BoolVal(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cty.NumberIntVal(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cty.NumberUIntVal(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return cty.NumberFloatVal(rv.Float())
	case reflect.String:
		return cty.StringVal(rv.String())
	}
	return cty.StringVal(FormatValue(v))
}

// HCLWriter writes root Options as attributes and each Namespace as a block
// named by its key.
type HCLWriter struct {
	IncludeAggregations bool
}

func (w *HCLWriter) Write(tree *Namespace, out io.Writer) error {
	file := hclwrite.NewEmptyFile()
	w.writeBody(tree, file.Body())
	_, err := file.WriteTo(out)
	return err
}

func (w *HCLWriter) writeBody(ns *Namespace, body *hclwrite.Body) {
	for key, node := range ns.Entries() {
		switch n := node.(type) {
		case *Option:
			if n.ExcludeFromDump {
				continue
			}
			hclComment(body, n.Doc)
			body.SetAttributeValue(key, nativeToCty(optionDump(n)))
		case *Aggregation:
			if !w.IncludeAggregations || !n.evaluated {
				continue
			}
			hclComment(body, n.Doc)
			body.SetAttributeValue(key, nativeToCty(scalarDump(n.Value)))
		case *Namespace:
			if !dumpable(n, w.IncludeAggregations) {
				continue
			}
			hclComment(body, n.Doc)
			block := body.AppendNewBlock(key, nil)
			w.writeBody(n, block.Body())
		}
	}
}

func hclComment(body *hclwrite.Body, doc string) {
	if doc == "" {
		return
	}
	body.AppendUnstructuredTokens(hclwrite.Tokens{{
		Type:  hclsyntax.TokenComment,
		Bytes: []byte("# " + doc + "\n"),
	}})
}
