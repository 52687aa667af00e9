package responder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/beevik/etree"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/soapdsig"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/store"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/transport"
)

// ITI39 handles inbound XCA document-retrieve requests.
type ITI39 struct {
	LocalURLs   []string
	OurHCID     string
	Store       *store.Store
	Credentials *transport.Credentials
}

type retrieveTriple struct {
	hcid         string
	repoID       string
	docUniqueID  string
	table        string
}

// Handle parses raw, keeps only the (hcid, repo_id, doc_unique_id) triples
// addressed to our HCID, loads and renders each resource, and wraps them in
// a RetrieveDocumentSetResponse, per spec §4.8.
func (h *ITI39) Handle(ctx context.Context, raw []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return h.renderEmpty()
	}

	var triples []retrieveTriple
	for _, dr := range findAllByLocalNameDeep(doc.Root(), "DocumentRequest") {
		hcid := textOfChild(dr, "HomeCommunityId")
		repoID := textOfChild(dr, "RepositoryUniqueId")
		docID := textOfChild(dr, "DocumentUniqueId")
		if model.StripOIDPrefix(hcid) != h.OurHCID {
			continue
		}
		triples = append(triples, retrieveTriple{hcid: hcid, repoID: repoID, docUniqueID: docID, table: tableFromRepositoryUniqueID(repoID)})
	}

	root := etree.NewElement("RetrieveDocumentSetResponse")
	root.CreateAttr("xmlns", ebRIMNamespace)
	for _, t := range triples {
		resource, err := h.Store.DocumentResource(ctx, t.table, t.docUniqueID)
		if err != nil {
			continue
		}
		var payload interface{}
		if err := json.Unmarshal(resource, &payload); err != nil {
			continue
		}

		docResponse := root.CreateElement("DocumentResponse")
		docResponse.CreateElement("HomeCommunityId").SetText(t.hcid)
		docResponse.CreateElement("RepositoryUniqueId").SetText(t.repoID)
		docResponse.CreateElement("DocumentUniqueId").SetText(t.docUniqueID)
		docResponse.CreateElement("mimeType").SetText("text/xml")

		xmlBody := etree.NewElement("ClinicalDocument")
		jsonToXML(payload, xmlBody)
		innerDoc := etree.NewDocument()
		innerDoc.SetRoot(xmlBody)
		innerBytes, _ := innerDoc.WriteToBytes()

		docResponse.CreateElement("Document").SetText(base64.StdEncoding.EncodeToString(innerBytes))
	}

	return signEnvelope(h.Credentials, soapdsig.TxITI39Response, h.OurHCID, root)
}

func (h *ITI39) renderEmpty() ([]byte, error) {
	root := etree.NewElement("RetrieveDocumentSetResponse")
	root.CreateAttr("xmlns", ebRIMNamespace)
	return signEnvelope(h.Credentials, soapdsig.TxITI39Response, h.OurHCID, root)
}

func textOfChild(parent *etree.Element, name string) string {
	if el := findByLocalNameDirect(parent, name); el != nil {
		return el.Text()
	}
	return ""
}

func findByLocalNameDirect(parent *etree.Element, name string) *etree.Element {
	if parent == nil {
		return nil
	}
	for _, child := range parent.ChildElements() {
		if localName(child.Tag) == name {
			return child
		}
	}
	return nil
}

// tableFromRepositoryUniqueID recovers the document table ITI38.Handle
// encoded into repoID (via repositoryUniqueID) when it originally surfaced
// this document, falling back to the first table in store.DocumentTables
// if the suffix doesn't match any of them — a peer we didn't mint the id
// for, or a malformed retrieve request.
func tableFromRepositoryUniqueID(repoID string) string {
	if i := strings.LastIndex(repoID, "."); i >= 0 {
		suffix := repoID[i+1:]
		for _, t := range store.DocumentTables {
			if t == suffix {
				return t
			}
		}
	}
	return store.DocumentTables[0]
}

// jsonToXML is the trivial, lossy JSON->XML recursion spec §9 calls for:
// nested objects become nested element trees, lists become repeated
// elements under the same tag, and attributes cannot be represented.
func jsonToXML(value interface{}, parent *etree.Element) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			addJSONField(parent, sanitizeTag(key), val)
		}
	case []interface{}:
		for _, item := range v {
			child := parent.CreateElement(parent.Tag)
			jsonToXML(item, child)
		}
	case string:
		parent.SetText(v)
	case nil:
	default:
		parent.SetText(jsonScalarText(v))
	}
}

// addJSONField appends val under tag, repeating the element once per item
// when val is a JSON array so lists render as sibling elements rather than
// an extra nesting level.
func addJSONField(parent *etree.Element, tag string, val interface{}) {
	if items, ok := val.([]interface{}); ok {
		for _, item := range items {
			child := parent.CreateElement(tag)
			jsonToXML(item, child)
		}
		return
	}
	child := parent.CreateElement(tag)
	jsonToXML(val, child)
}

func jsonScalarText(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.Trim(string(b), `"`)
}

func sanitizeTag(key string) string {
	if key == "" {
		return "field"
	}
	return key
}
