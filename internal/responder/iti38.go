package responder

import (
	"context"
	"encoding/json"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/soapdsig"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/store"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/transport"
)

// ITI38 handles inbound XCA document-query requests.
type ITI38 struct {
	LocalURLs   []string
	OurHCID     string
	Store       *store.Store
	Credentials *transport.Credentials
}

// documentCodes is the subset of a document's FHIR resource this handler
// reads to populate the Classification elements, per spec §4.8.
type documentCodes struct {
	LOINC            string `json:"loincCode"`
	FormatCode       string `json:"formatCode"`
	HCFCode          string `json:"hcfCode"`
	PatientFhirID    string `json:"patientFhirId"`
}

// Handle parses raw, extracts the $XDSDocumentEntryPatientId slot values,
// matches documents in the local store, and renders the AdhocQueryResponse.
func (h *ITI38) Handle(ctx context.Context, raw []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return h.renderEmpty()
	}

	to := findByLocalName(doc.Root(), "To")
	if to != nil && !addressedTo(h.LocalURLs, to.Text()) {
		return nil, &ErrWrongAddressee{To: to.Text()}
	}

	var patientFhirIDs []string
	for _, slot := range findAllByLocalNameDeep(doc.Root(), "Slot") {
		if slot.SelectAttrValue("name", "") != "$XDSDocumentEntryPatientId" {
			continue
		}
		for _, v := range findAllByLocalNameDeep(slot, "Value") {
			patientFhirIDs = append(patientFhirIDs, extractPatientID(v.Text()))
		}
	}

	var matches []store.DocumentMatch
	for _, fhirID := range patientFhirIDs {
		found, err := h.Store.MatchDocuments(ctx, fhirID)
		if err != nil {
			return h.renderEmpty()
		}
		matches = append(matches, found...)
	}

	return h.renderResponse(matches)
}

func addressedTo(urls []string, to string) bool {
	for _, u := range urls {
		if u == to {
			return true
		}
	}
	return false
}

// repositoryUniqueID encodes which document table a match came from into
// the repositoryUniqueId slot value ITI39.Handle later reads back via
// tableFromRepositoryUniqueID, so retrieval doesn't have to guess.
func repositoryUniqueID(ourHCID, table string) string {
	return ourHCID + "." + table
}

// extractPatientID recovers the bare patient id from the query's
// '<extension>^^^&<root>&ISO' slot value shape.
func extractPatientID(raw string) string {
	for i, c := range raw {
		if c == '^' {
			return raw[:i]
		}
	}
	return raw
}

func (h *ITI38) renderResponse(matches []store.DocumentMatch) ([]byte, error) {
	root := etree.NewElement("rim:AdhocQueryResponse")
	root.CreateAttr("xmlns:rim", ebRIMNamespace)
	root.CreateAttr("status", statusApproved)

	registryObjectList := root.CreateElement("rim:RegistryObjectList")
	for _, m := range matches {
		var codes documentCodes
		_ = json.Unmarshal(m.Resource, &codes)

		eo := registryObjectList.CreateElement("rim:ExtrinsicObject")
		eo.CreateAttr("id", "urn:uuid:"+uuid.NewString())
		eo.CreateAttr("home", "urn:oid:"+h.OurHCID)
		eo.CreateAttr("mimeType", "text/xml")
		eo.CreateAttr("status", statusApproved)

		name := eo.CreateElement("rim:Name")
		name.CreateElement("rim:LocalizedString").CreateAttr("value", m.Table)

		addSlot(eo, "sourcePatientId", codes.PatientFhirID)
		// repositoryUniqueId carries the originating table alongside
		// OurHCID so ITI39.Handle can recover which table to load a
		// later DocumentUniqueId retrieval from, instead of guessing.
		addSlot(eo, "repositoryUniqueId", repositoryUniqueID(h.OurHCID, m.Table))

		addClassification(eo, "LOINC", codes.LOINC, loincSystemOID)
		if codes.FormatCode != "" {
			addClassification(eo, "formatCode", codes.FormatCode, "")
		}
		addConfidentialityClassification(eo)
		if codes.HCFCode != "" {
			addClassification(eo, "hcfCode", codes.HCFCode, "")
		}

		addExternalIdentifier(eo, patientIDSchemeUUID, codes.PatientFhirID)
		addExternalIdentifier(eo, documentIDSchemeUUID, m.ID)
	}

	return signEnvelope(h.Credentials, soapdsig.TxITI38Response, h.OurHCID, root)
}

func (h *ITI38) renderEmpty() ([]byte, error) {
	root := etree.NewElement("rim:AdhocQueryResponse")
	root.CreateAttr("xmlns:rim", ebRIMNamespace)
	root.CreateAttr("status", statusApproved)
	root.CreateElement("rim:RegistryObjectList")
	return signEnvelope(h.Credentials, soapdsig.TxITI38Response, h.OurHCID, root)
}

func addSlot(parent *etree.Element, name, value string) {
	slot := parent.CreateElement("rim:Slot")
	slot.CreateAttr("name", name)
	valueList := slot.CreateElement("rim:ValueList")
	valueList.CreateElement("rim:Value").SetText(value)
}

func addClassification(parent *etree.Element, scheme, code, codingSchemeOID string) {
	c := parent.CreateElement("rim:Classification")
	c.CreateAttr("classificationScheme", scheme)
	c.CreateAttr("nodeRepresentation", code)
	if codingSchemeOID != "" {
		addSlot(c, "codingScheme", codingSchemeOID)
	}
}

func addConfidentialityClassification(parent *etree.Element) {
	c := parent.CreateElement("rim:Classification")
	c.CreateAttr("classificationScheme", "confidentialityCode")
	c.CreateAttr("nodeRepresentation", "N")
	addSlot(c, "codingScheme", confidentialityCodeSystem)
}

func addExternalIdentifier(parent *etree.Element, scheme, value string) {
	ext := parent.CreateElement("rim:ExternalIdentifier")
	ext.CreateAttr("identificationScheme", scheme)
	ext.CreateAttr("value", value)
}

func findAllByLocalNameDeep(parent *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	if parent == nil {
		return out
	}
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		if localName(e.Tag) == name {
			out = append(out, e)
		}
		for _, child := range e.ChildElements() {
			walk(child)
		}
	}
	walk(parent)
	return out
}
