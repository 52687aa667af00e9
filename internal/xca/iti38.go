// Package xca builds and parses the ITI-38 Cross-Gateway Query
// (AdhocQueryRequest/Response) and ITI-39 Cross-Gateway Retrieve
// (RetrieveDocumentSet request/response) ebXML RIM payloads, per spec
// §4.4/§4.5.
package xca

import (
	"fmt"
	"regexp"
	"time"

	"github.com/beevik/etree"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

const (
	ebRIMNamespace = "urn:oasis:names:tc:ebxml-regrep:xsd:rim:3.0"
	ebQueryNamespace = "urn:oasis:names:tc:ebxml-regrep:xsd:query:3.0"

	statusApproved = "urn:oasis:names:tc:ebxml-regrep:StatusType:Approved"

	loincSystemOID          = "2.16.840.1.113883.6.1"
	patientIDSchemeUUID     = "urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427"
	documentIDSchemeUUID    = "urn:uuid:2e82c1f6-a085-4c72-9da3-8640a32e42ab"
	defaultReturnType       = "LeafClass"
	iti38Timeout            = 60 * time.Second
	iti39Timeout            = 60 * time.Second
	documentsPerChunk       = 5
)

// ITI38RequestParams builds an AdhocQueryRequest per spec §4.4.
type ITI38RequestParams struct {
	ResponderHCID string
	PatientIDs    []model.PatientID
	ReturnType    string // defaults to "LeafClass"
}

// Timeout is the fixed 60s ITI-38 stage timeout.
func (ITI38RequestParams) Timeout() time.Duration { return iti38Timeout }

// BuildITI38Request constructs the AdhocQueryRequest body: a ResponseOption
// requesting composed objects of ReturnType, and an AdhocQuery carrying the
// patient-id and status slots.
func BuildITI38Request(p ITI38RequestParams) *etree.Element {
	returnType := p.ReturnType
	if returnType == "" {
		returnType = defaultReturnType
	}

	root := etree.NewElement("AdhocQueryRequest")
	root.CreateAttr("xmlns", ebQueryNamespace)
	root.CreateAttr("xmlns:rim", ebRIMNamespace)

	responseOption := root.CreateElement("ResponseOption")
	responseOption.CreateAttr("returnComposedObjects", "true")
	responseOption.CreateAttr("returnType", returnType)

	query := root.CreateElement("rim:AdhocQuery")
	query.CreateAttr("home", "urn:oid:"+p.ResponderHCID)

	slotList := query.CreateElement("rim:Slot")
	slotList.CreateAttr("name", "$XDSDocumentEntryPatientId")
	valueList := slotList.CreateElement("rim:ValueList")
	for _, pid := range p.PatientIDs {
		valueList.CreateElement("rim:Value").SetText(
			fmt.Sprintf("'%s^^^&%s&ISO'", pid.Extension, pid.Root))
	}

	statusSlot := query.CreateElement("rim:Slot")
	statusSlot.CreateAttr("name", "$XDSDocumentEntryStatus")
	statusValues := statusSlot.CreateElement("rim:ValueList")
	statusValues.CreateElement("rim:Value").SetText("('" + statusApproved + "')")

	return root
}

// ParseITI38Response implements spec §4.4's response parse: for each
// ExtrinsicObject, recover (pid, doc_id, rid, doc_type, replacement_hcid),
// emitting a tuple only when pid, doc_id, and rid are all set.
func ParseITI38Response(raw []byte, responderHCID string) ([]model.PatientDocID, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parse iti-38 response: %w", err)
	}

	var out []model.PatientDocID
	for _, eo := range findAllByLocalName(doc.Root(), "ExtrinsicObject") {
		replacementHCID := model.StripOIDPrefix(eo.SelectAttrValue("home", ""))
		if replacementHCID == "" {
			replacementHCID = responderHCID
		}

		var rid string
		for _, slot := range findAllByLocalName(eo, "Slot") {
			if slot.SelectAttrValue("name", "") == "repositoryUniqueId" {
				rid = findText(slot, "Value")
			}
		}

		var docType string
		for _, classification := range findAllByLocalName(eo, "Classification") {
			for _, slot := range findAllByLocalName(classification, "Slot") {
				if findText(slot, "Value") == loincSystemOID {
					docType = classification.SelectAttrValue("nodeRepresentation", "")
				}
			}
		}

		var pid, docID string
		for _, extID := range findAllByLocalName(eo, "ExternalIdentifier") {
			value := extID.SelectAttrValue("value", "")
			switch extID.SelectAttrValue("identificationScheme", "") {
			case patientIDSchemeUUID:
				parts := splitOnce(value, "^^^&")
				pid = parts[0]
				if rid == "" && len(parts) > 1 {
					rid = splitOnce(parts[1], "&")[0]
				}
			case documentIDSchemeUUID:
				docID = value
			}
		}

		if pid == "" || docID == "" || rid == "" {
			continue
		}
		out = append(out, model.PatientDocID{
			PID:             pid,
			DocID:           docID,
			RID:             rid,
			DocType:         docType,
			ReplacementHCID: replacementHCID,
		})
	}
	return out, nil
}

func splitOnce(s, sep string) []string {
	re := regexp.MustCompile(regexp.QuoteMeta(sep))
	parts := re.Split(s, 2)
	if len(parts) == 1 {
		return []string{parts[0], ""}
	}
	return parts
}

func findText(el *etree.Element, localName string) string {
	if found := findByLocalName(el, localName); found != nil {
		return found.Text()
	}
	return ""
}

// findByLocalName returns the first descendant of el (depth-first, el's own
// children searched before grandchildren) whose local name matches name —
// needed because the value an ebXML Slot carries, rim:Slot/rim:ValueList/
// rim:Value, sits two levels below the Slot itself.
func findByLocalName(el *etree.Element, name string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, child := range el.ChildElements() {
		if stripPrefix(child.Tag) == name {
			return child
		}
	}
	for _, child := range el.ChildElements() {
		if found := findByLocalName(child, name); found != nil {
			return found
		}
	}
	return nil
}

func findAllByLocalName(el *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	if el == nil {
		return out
	}
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		if stripPrefix(e.Tag) == name {
			out = append(out, e)
		}
		for _, child := range e.ChildElements() {
			walk(child)
		}
	}
	walk(el)
	return out
}

func stripPrefix(tag string) string {
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ':' {
			return tag[i+1:]
		}
	}
	return tag
}
