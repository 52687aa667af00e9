// Package responder implements the inbound XCPD/XCA transaction handlers
// spec §4.8 describes: ITI-55 patient discovery, ITI-38 document query, and
// ITI-39 document retrieval, each validating the addressee, extracting
// request parameters via a static dispatch table, querying the local
// record store, and rendering one of a small set of response templates.
package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/soapdsig"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/store"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/transport"
)

// ErrWrongAddressee is returned when the inbound envelope's Header/To does
// not match any configured local URL, per spec §9's "unconditional hcid
// check" note — this is fatal, no response is synthesised.
type ErrWrongAddressee struct {
	To string
}

func (e *ErrWrongAddressee) Error() string {
	return fmt.Sprintf("responder: addressee %q is not a configured local URL", e.To)
}

// ITI55 handles inbound XCPD patient-discovery requests.
type ITI55 struct {
	LocalURLs   []string
	OurHCID     string
	Store       *store.Store
	Credentials *transport.Credentials
}

// Handle parses raw, validates addressing, looks up matching patients, and
// renders the OK/NF response template.
func (h *ITI55) Handle(ctx context.Context, raw []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return h.renderNotFound("")
	}

	to := findByLocalName(doc.Root(), "To")
	if to == nil || !h.addressedToUs(to.Text()) {
		return nil, &ErrWrongAddressee{To: textOrEmpty(to)}
	}

	theirHCID := textOrEmpty(findByLocalName(doc.Root(), "Sender"))

	qbp := findByLocalName(doc.Root(), "queryByParameter")
	if qbp == nil {
		return h.renderNotFound(theirHCID)
	}
	demo := extractDemographics(qbp)

	fields := []store.PatientField{
		{Path: "given", Value: demo["given"]},
		{Path: "family", Value: demo["family"]},
		{Path: "birthtime", Value: demo["birthtime"]},
	}
	ids, err := h.Store.MatchPatients(ctx, fields)
	if err != nil {
		return h.renderNotFound(theirHCID)
	}

	switch len(ids) {
	case 1:
		resource, err := h.Store.PatientResource(ctx, ids[0])
		if err != nil {
			return h.renderNotFound(theirHCID)
		}
		return h.renderMatch(theirHCID, ids[0], resource)
	default:
		return h.renderNotFound(theirHCID)
	}
}

func (h *ITI55) addressedToUs(to string) bool {
	for _, u := range h.LocalURLs {
		if u == to {
			return true
		}
	}
	return false
}

// fhirPatient is the flattened shape the Patient table's resource column
// holds — the same field names store.MatchPatients' containment queries
// use ("given", "family", "birthtime"), extended with the rest of the
// demographics the single-match template fills in per spec §4.8.
type fhirPatient struct {
	Given      string `json:"given"`
	Family     string `json:"family"`
	Gender     string `json:"gender"`
	BirthTime  string `json:"birthtime"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// renderMatch builds the single-match PRPA_IN201306UV02 response template,
// queryResponseCode=OK, per spec §4.8. The returned patient id is
// (root=OurHCID, extension=patientFhirID) so a subsequent ITI-38 request
// carrying that id back resolves through store.MatchDocuments the same way
// ITI38.Handle already expects.
func (h *ITI55) renderMatch(theirHCID, patientFhirID string, patientResource []byte) ([]byte, error) {
	var p fhirPatient
	_ = json.Unmarshal(patientResource, &p)

	root := etree.NewElement("PRPA_IN201306UV02")
	root.CreateAttr("xmlns", hl7Namespace)
	root.CreateElement("creationTime").CreateAttr("value", formatHL7Time(time.Now()))
	addDevice(root, "receiver", theirHCID)
	addDevice(root, "sender", h.OurHCID)

	cap := root.CreateElement("controlActProcess")
	qack := cap.CreateElement("queryAck")
	qack.CreateElement("queryResponseCode").CreateAttr("code", "OK")

	subject := cap.CreateElement("subject")
	regEvent := subject.CreateElement("registrationEvent")
	patient := regEvent.CreateElement("subject1").CreateElement("patient")

	id := patient.CreateElement("id")
	id.CreateAttr("root", h.OurHCID)
	id.CreateAttr("extension", patientFhirID)

	person := patient.CreateElement("patientPerson")
	name := person.CreateElement("name")
	name.CreateElement("given").SetText(p.Given)
	name.CreateElement("family").SetText(p.Family)
	person.CreateElement("administrativeGenderCode").CreateAttr("code", p.Gender)
	person.CreateElement("birthTime").CreateAttr("value", p.BirthTime)
	addr := person.CreateElement("addr")
	addr.CreateElement("streetAddressLine").SetText(p.Street)
	addr.CreateElement("city").SetText(p.City)
	addr.CreateElement("state").SetText(p.State)
	addr.CreateElement("postalCode").SetText(p.PostalCode)
	addr.CreateElement("country").SetText(p.Country)

	return signEnvelope(h.Credentials, soapdsig.TxITI55Response, theirHCID, root)
}

// renderNotFound builds the no-match template, queryResponseCode=NF, used
// both for genuine zero/multiple-match outcomes and for any unexpected
// failure, per spec §4.8.
func (h *ITI55) renderNotFound(theirHCID string) ([]byte, error) {
	root := etree.NewElement("PRPA_IN201306UV02")
	root.CreateAttr("xmlns", hl7Namespace)
	root.CreateElement("creationTime").CreateAttr("value", formatHL7Time(time.Now()))
	cap := root.CreateElement("controlActProcess")
	qack := cap.CreateElement("queryAck")
	qack.CreateElement("queryResponseCode").CreateAttr("code", "NF")
	return signEnvelope(h.Credentials, soapdsig.TxITI55Response, theirHCID, root)
}

func addDevice(parent *etree.Element, tag, hcid string) {
	device := parent.CreateElement(tag).CreateElement("device")
	device.CreateElement("id").CreateAttr("root", hcid)
}

func textOrEmpty(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return el.Text()
}

func findByLocalName(parent *etree.Element, name string) *etree.Element {
	if parent == nil {
		return nil
	}
	for _, el := range parent.FindElements(".//*") {
		if localName(el.Tag) == name {
			return el
		}
	}
	if localName(parent.Tag) == name {
		return parent
	}
	return nil
}

func localName(tag string) string {
	if i := strings.LastIndex(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

func formatHL7Time(t time.Time) string {
	return t.UTC().Format("20060102150405")
}
