// SPDX-License-Identifier: Apache-2.0
// This file is adapted from the github.com/russellhaering/goxmldsig project,
// vendored locally the way the teacher library vendors it (see
// l-d-t-fiskalhrgo/etreeutils in the source this package is adapted from).
package etreeutils

import "github.com/beevik/etree"

// SortedAttrs sorts etree.Attr slices into canonical XML attribute order:
// the default xmlns declaration first, then prefixed xmlns: declarations
// (alphabetically by prefix), then unprefixed attributes, then prefixed
// attributes (grouped by namespace URI, then by local name).
type SortedAttrs []etree.Attr

func (a SortedAttrs) Len() int      { return len(a) }
func (a SortedAttrs) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

func (a SortedAttrs) Less(i, j int) bool {
	return attrSortKey(a[i]) < attrSortKey(a[j])
}

// attrSortKey assigns a string key such that lexical ordering produces
// canonical XML attribute order.
func attrSortKey(attr etree.Attr) string {
	switch {
	case attr.Space == "" && attr.Key == "xmlns":
		return "\x00"
	case attr.Space == "xmlns":
		return "\x01" + attr.Key
	case attr.Space == "":
		return "\x02" + attr.Key
	default:
		return "\x03" + attr.Space + "\x00" + attr.Key
	}
}
