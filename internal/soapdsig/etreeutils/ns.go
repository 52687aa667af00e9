// SPDX-License-Identifier: Apache-2.0
// This file is adapted from the github.com/russellhaering/goxmldsig project,
// implementing the Exclusive XML Canonicalization namespace-rendering rules
// (http://www.w3.org/2001/10/xml-exc-c14n#) against beevik/etree trees.
package etreeutils

import (
	"sort"
	"strings"

	"github.com/beevik/etree"
)

func nsKey(attr etree.Attr) string {
	switch {
	case attr.Space == "" && attr.Key == "xmlns":
		return ""
	case attr.Space == "xmlns":
		return attr.Key
	default:
		return "\x00notns"
	}
}

// TransformExcC14n rewrites el (and its descendants) in place to carry
// exactly the namespace declarations Exclusive XML Canonicalization would
// render for it: a prefix is declared on the nearest element that visibly
// uses it (in its own name or an attribute's name) and is not already
// declared, identically, by an ancestor already processed in this pass.
// prefixList additionally forces inclusion of the named (space separated)
// prefixes at the element where InclusiveNamespaces applies, matching the
// optional PrefixList extension to exclusive c14n. Attributes are left in
// canonical sort order (xmlns, xmlns:*, plain, prefixed) on exit.
//
// el's descendants are mutated top-down, so resolving a prefix cannot walk
// the live ancestor chain once an ancestor's own declarations have already
// been rewritten. Instead an ambient namespace context is threaded down
// separately from the rendered-above set: ambient tracks what each prefix
// actually resolves to in the original document (seeded from el's true,
// unmutated ancestors), while rendered-above tracks only what has already
// been re-declared in the output, so the two can disagree without losing
// the binding a deeper element still needs.
func TransformExcC14n(el *etree.Element, prefixList string, withComments bool) error {
	inclusive := map[string]bool{}
	for _, p := range strings.Fields(prefixList) {
		inclusive[p] = true
	}

	ambient := map[string]string{}
	for e := el.Parent(); e != nil; e = e.Parent() {
		for _, attr := range e.Attr {
			key := nsKey(attr)
			if key == "\x00notns" {
				continue
			}
			if _, exists := ambient[key]; !exists {
				ambient[key] = attr.Value
			}
		}
	}

	rendered := map[string]string{}
	transformExcC14nInner(el, ambient, rendered, inclusive, withComments)
	return nil
}

func transformExcC14nInner(el *etree.Element, ambient map[string]string, renderedAbove map[string]string, inclusive map[string]bool, withComments bool) {
	// the namespace context in scope for el's children: ambient plus
	// whatever el itself originally bound, captured before el is stripped.
	childAmbient := make(map[string]string, len(ambient))
	for k, v := range ambient {
		childAmbient[k] = v
	}
	for _, attr := range el.Attr {
		key := nsKey(attr)
		if key != "\x00notns" {
			childAmbient[key] = attr.Value
		}
	}

	// visibly utilized prefixes: the element's own prefix, its attributes'
	// prefixes, and anything named in the InclusiveNamespaces PrefixList.
	used := map[string]bool{}
	used[elPrefix(el)] = true
	for _, attr := range el.Attr {
		if nsKey(attr) == "\x00notns" && attr.Space != "" {
			used[attr.Space] = true
		}
	}
	for p := range inclusive {
		used[p] = true
	}

	resolved := map[string]string{}
	for prefix := range used {
		if uri, ok := childAmbient[prefix]; ok {
			resolved[prefix] = uri
		}
	}

	// decide which need a fresh declaration on this element.
	declaredHere := make(map[string]string, len(renderedAbove))
	for k, v := range renderedAbove {
		declaredHere[k] = v
	}
	var toDeclare []string
	for prefix, uri := range resolved {
		if already, ok := declaredHere[prefix]; !ok || already != uri {
			toDeclare = append(toDeclare, prefix)
			declaredHere[prefix] = uri
		}
	}
	sort.Strings(toDeclare)

	// strip all existing xmlns* attributes, then re-add exactly the needed set.
	kept := el.Attr[:0]
	for _, attr := range el.Attr {
		if nsKey(attr) == "\x00notns" {
			kept = append(kept, attr)
		}
	}
	el.Attr = kept
	for _, prefix := range toDeclare {
		if prefix == "" {
			el.CreateAttr("xmlns", resolved[prefix])
		} else {
			el.CreateAttr("xmlns:"+prefix, resolved[prefix])
		}
	}
	sort.Sort(SortedAttrs(el.Attr))

	if !withComments {
		i := 0
		for i < len(el.Child) {
			if _, ok := el.Child[i].(*etree.Comment); ok {
				el.RemoveChildAt(i)
			} else {
				i++
			}
		}
	}

	for _, child := range el.ChildElements() {
		transformExcC14nInner(child, childAmbient, declaredHere, inclusive, withComments)
	}
}

func elPrefix(el *etree.Element) string {
	return el.Space
}
