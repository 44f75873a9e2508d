package bvh

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Build a tabular representation of the packed tree's memory layout.
func (b *BVH) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Section", "Array", "Size"})
	table.Append([]string{"Nodes", "---", fmtSize(b.Pack.Nodes, b.Pack.LeafNodes, b.Pack.ObjectNode)})
	table.Append([]string{"", "Inner rows", fmtSize(b.Pack.Nodes)})
	table.Append([]string{"", "Leaf rows", fmtSize(b.Pack.LeafNodes)})
	table.Append([]string{"", "Object map", fmtSize(b.Pack.ObjectNode)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Primitives", "---", fmtSize(b.Pack.PrimIndex, b.Pack.PrimType, b.Pack.PrimObject, b.Pack.PrimVisibility, b.Pack.PrimTime)})
	table.Append([]string{"", "Indices", fmtSize(b.Pack.PrimIndex)})
	table.Append([]string{"", "Types", fmtSize(b.Pack.PrimType)})
	table.Append([]string{"", "Objects", fmtSize(b.Pack.PrimObject)})
	table.Append([]string{"", "Visibility", fmtSize(b.Pack.PrimVisibility)})
	table.Append([]string{"", "Times", fmtSize(b.Pack.PrimTime)})
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(b.Pack.Nodes, b.Pack.LeafNodes, b.Pack.ObjectNode, b.Pack.PrimIndex, b.Pack.PrimType, b.Pack.PrimObject, b.Pack.PrimVisibility, b.Pack.PrimTime), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
