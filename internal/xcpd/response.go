package xcpd

import (
	"github.com/beevik/etree"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/pipeline"
)

// ParseResponse implements spec §4.3's response parse: recover the envelope,
// find queryResponseCode, and classify the outcome. Any parse failure — a
// malformed document, a missing queryResponseCode, or a code other than OK —
// yields NotFound. Exactly one registrationEvent yields Matched with the
// patient's sole (root, extension) id and demographics; more than one yields
// Multiple.
func ParseResponse(raw []byte) pipeline.Outcome {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return pipeline.Outcome{Kind: pipeline.KindNotFound}
	}

	code := findAttrByLocalName(doc.Root(), "queryResponseCode", "code")
	if code == "" || code != "OK" {
		return pipeline.Outcome{Kind: pipeline.KindNotFound}
	}

	events := findAllByLocalName(doc.Root(), "registrationEvent")
	switch len(events) {
	case 0:
		return pipeline.Outcome{Kind: pipeline.KindNotFound}
	case 1:
		return parseSingleMatch(events[0])
	default:
		return pipeline.Outcome{Kind: pipeline.KindMultiple}
	}
}

func parseSingleMatch(event *etree.Element) pipeline.Outcome {
	patientEl := findByLocalName(event, "patient")
	if patientEl == nil {
		return pipeline.Outcome{Kind: pipeline.KindNotFound}
	}
	idEl := findByLocalName(patientEl, "id")
	if idEl == nil {
		return pipeline.Outcome{Kind: pipeline.KindNotFound}
	}
	root := idEl.SelectAttrValue("root", "")
	extension := idEl.SelectAttrValue("extension", "")

	patient := model.PatientMetadata{
		GivenName:                findText(patientEl, "given"),
		FamilyName:                findText(patientEl, "family"),
		AdministrativeGenderCode:  model.AdministrativeGender(findAttrByLocalName(patientEl, "administrativeGenderCode", "code")),
		BirthTime:                 findAttrByLocalName(patientEl, "birthTime", "value"),
		StreetAddressLine:         findText(patientEl, "streetAddressLine"),
		City:                      findText(patientEl, "city"),
		State:                     findText(patientEl, "state"),
		PostalCode:                findText(patientEl, "postalCode"),
		Country:                   findText(patientEl, "country"),
	}

	return pipeline.Outcome{
		Kind:       pipeline.KindMatched,
		Patient:    patient,
		PatientIDs: []model.PatientID{{Root: root, Extension: extension}},
	}
}

// findText returns the text content of the first descendant element whose
// local name (ignoring any namespace prefix) matches name.
func findText(el *etree.Element, name string) string {
	if found := findByLocalName(el, name); found != nil {
		return found.Text()
	}
	return ""
}

func findAttrByLocalName(el *etree.Element, name, attr string) string {
	if found := findByLocalName(el, name); found != nil {
		return found.SelectAttrValue(attr, "")
	}
	return ""
}

func findByLocalName(el *etree.Element, name string) *etree.Element {
	if el == nil {
		return nil
	}
	if localName(el.Tag) == name {
		return el
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
		if localName(e.Tag) == name {
			out = append(out, e)
		}
		for _, child := range e.ChildElements() {
			walk(child)
		}
	}
	walk(el)
	return out
}

// localName strips any "prefix:" from a tag, matching the request-side
// elements built without a prefix and tolerating prefixed responder output.
func localName(tag string) string {
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ':' {
			return tag[i+1:]
		}
	}
	return tag
}
