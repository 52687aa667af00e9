package responder

import "github.com/beevik/etree"

// Accessor is how a dispatch table entry pulls its value out of the element
// an XPath lookup found: either the element's text or one of its
// attributes. Spec §9 flags that the source uses string-evaluated
// accessors (`"get(\"code\")"`, `"text"`); this is the typed re-
// implementation of that dispatch.
type Accessor struct {
	attr string // empty means "use element text"
}

var (
	accessorText           = Accessor{}
	accessorAttr           = func(name string) Accessor { return Accessor{attr: name} }
)

func (a Accessor) read(el *etree.Element) string {
	if el == nil {
		return ""
	}
	if a.attr == "" {
		return el.Text()
	}
	return el.SelectAttrValue(a.attr, "")
}

// field is one static dispatch-table entry: where to look, and how to read
// what's found there.
type field struct {
	xpath    string
	accessor Accessor
}

// demographicFields is the fixed dispatch table spec §9 calls for in place
// of the source's string-evaluated XPath accessors. Paths are relative to
// the queryByParameter element.
var demographicFields = map[string]field{
	"given":        {".//livingSubjectName/value/given", accessorText},
	"family":       {".//livingSubjectName/value/family", accessorText},
	"gender":       {".//livingSubjectAdministrativeGender/value", accessorAttr("code")},
	"birthtime":    {".//livingSubjectBirthTime/value", accessorAttr("value")},
	"street":       {".//patientAddress/value/streetAddressLine", accessorText},
	"city":         {".//patientAddress/value/city", accessorText},
	"state":        {".//patientAddress/value/state", accessorText},
	"postal_code":  {".//patientAddress/value/postalCode", accessorText},
	"country":      {".//patientAddress/value/country", accessorText},
	"telecom":      {".//patientTelecom/value", accessorAttr("value")},
	"maiden_name":  {".//mothersMaidenName/value/family", accessorText},
	"pcp_id":       {".//patientCareProvisionElement/value/id", accessorAttr("extension")},
}

// extractDemographics reads every field of demographicFields out of a
// queryByParameter element into a plain string map. Missing elements read
// as empty strings, never raise.
func extractDemographics(queryByParameter *etree.Element) map[string]string {
	out := make(map[string]string, len(demographicFields))
	for name, f := range demographicFields {
		el := queryByParameter.FindElement(f.xpath)
		out[name] = f.accessor.read(el)
	}
	return out
}
