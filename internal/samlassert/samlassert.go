// Package samlassert builds the signed SAML 2.0 holder-of-key assertion
// embedded in each outbound request's WS-Security header, per spec §4.2.
package samlassert

import (
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/soapdsig"
)

const (
	samlNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"

	nameIDFormatX509Subject = "urn:oasis:names:tc:SAML:1.1:nameid-format:X509SubjectName"
	confirmationMethodHoK   = "urn:oasis:names:tc:SAML:2.0:cm:holder-of-key"
	audienceConnectathon    = "http://ihe.connectathon.XUA/X-ServiceProvider-IHE-Connectathon"
	authnContextPassword    = "urn:oasis:names:tc:SAML:2.0:ac:classes:Password"

	purposeOfUseCodeSystem = "2.16.840.1.113883.3.18.7.1"
	purposeOfUseSystemName = "nhin-purpose"
	hl7RoleCodeSystem      = "2.16.840.1.113883.6.96"
	hl7RoleSystemName      = "SNOMED_CT"

	rsaExponentAQAB = "AQAB"
)

// Attributes that are carried on every assertion, beyond the ones derived
// per-call from UserQualifications: purpose of use and the requester's
// HL7 role, both rendered as embedded hl7: elements rather than plain text.
type Attributes struct {
	PurposeOfUseCode string
	RoleCode         string
}

// Built is the result of Build: the finished, enveloped-signed
// wsse:Security-wrapped assertion element plus the assertion's bare ID
// (without the leading underscore), which the SOAP-level signature's
// KeyInfo references back.
type Built struct {
	Security *etree.Element
	RefID    string
}

// Build constructs and signs a SAML 2.0 holder-of-key assertion per spec
// §4.2: Issuer/Subject NameIDs from the signing certificate's subject DN,
// SubjectConfirmationData carrying the signing key's RSA modulus/exponent,
// a one-hour Conditions window, the fixed XSPA/XCA attribute set drawn from
// qual and attrs, and an AuthnStatement with the Password authn context
// class. The assertion is enveloped-signed (xml-exc-c14n, rsa-sha1, sha1)
// and wrapped in a wsse:Security element.
func Build(qual model.UserQualifications, attrs Attributes, cert *x509.Certificate, key *rsa.PrivateKey) (*Built, error) {
	if err := qual.Validate(); err != nil {
		return nil, fmt.Errorf("build saml assertion: %w", err)
	}
	pub, ok := key.Public().(*rsa.PublicKey)
	if !ok {
		pub = &key.PublicKey
	}

	subjectDN := subjectDistinguishedName(cert.Subject)
	assertionID := uuid.NewString()
	now := time.Now().UTC()

	doc := etree.NewDocument()
	assertion := doc.CreateElement("saml2:Assertion")
	assertion.CreateAttr("xmlns:saml2", samlNamespace)
	assertion.CreateAttr("ID", "_"+assertionID)
	assertion.CreateAttr("IssueInstant", formatSAMLTime(now))
	assertion.CreateAttr("Version", "2.0")

	issuer := assertion.CreateElement("saml2:Issuer")
	issuer.CreateAttr("Format", nameIDFormatX509Subject)
	issuer.SetText(subjectDN)

	subject := assertion.CreateElement("saml2:Subject")
	subjectNameID := subject.CreateElement("saml2:NameID")
	subjectNameID.CreateAttr("Format", nameIDFormatX509Subject)
	subjectNameID.SetText(subjectDN)

	confirmation := subject.CreateElement("saml2:SubjectConfirmation")
	confirmation.CreateAttr("Method", confirmationMethodHoK)
	confirmationData := confirmation.CreateElement("saml2:SubjectConfirmationData")
	confirmationData.CreateAttr("xsi:type", "saml2:KeyInfoConfirmationDataType")
	confirmationData.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	keyInfo := confirmationData.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", soapdsig.Namespace)
	keyValue := keyInfo.CreateElement("ds:KeyValue")
	rsaKeyValue := keyValue.CreateElement("ds:RSAKeyValue")
	modulus := rsaKeyValue.CreateElement("ds:Modulus")
	modulus.SetText(base64.StdEncoding.EncodeToString(pub.N.Bytes()))
	exponent := rsaKeyValue.CreateElement("ds:Exponent")
	exponent.SetText(rsaExponentAQAB)

	conditions := assertion.CreateElement("saml2:Conditions")
	conditions.CreateAttr("NotBefore", formatSAMLTime(now))
	conditions.CreateAttr("NotOnOrAfter", formatSAMLTime(now.Add(time.Hour)))
	audienceRestriction := conditions.CreateElement("saml2:AudienceRestriction")
	audience := audienceRestriction.CreateElement("saml2:Audience")
	audience.SetText(audienceConnectathon)

	attrStatement := assertion.CreateElement("saml2:AttributeStatement")
	addAttribute(attrStatement, "urn:oasis:names:tc:xspa:1.0:subject:subject-id", "XSPA Subject", qual.SubjectName)
	addAttribute(attrStatement, "urn:oasis:names:tc:xspa:1.0:subject:organization", "", qual.Organization)
	addAttribute(attrStatement, "urn:oasis:names:tc:xspa:2.0:subject:npi", "NPI", qual.NPI)
	addAttribute(attrStatement, "urn:oasis:names:tc:xspa:1.0:subject:organization-id", "XSPA Organization ID", "urn:oid:"+qual.OrgHCID)
	addAttribute(attrStatement, "urn:nhin:names:saml:homeCommunityId", "XCA Home Community ID", "urn:oid:"+qual.OrgHCID)

	purposeAttr := newAttribute(attrStatement, "urn:oasis:names:tc:xspa:1.0:subject:purposeofuse", "Purpose of Use")
	purposeValue := purposeAttr.CreateElement("saml2:AttributeValue")
	purposeEl := purposeValue.CreateElement("hl7:PurposeOfUse")
	purposeEl.CreateAttr("xmlns:hl7", "urn:hl7-org:v3")
	purposeEl.CreateAttr("code", attrs.PurposeOfUseCode)
	purposeEl.CreateAttr("codeSystem", purposeOfUseCodeSystem)
	purposeEl.CreateAttr("codeSystemName", purposeOfUseSystemName)

	roleAttr := newAttribute(attrStatement, "urn:oasis:names:tc:xacml:2.0:subject:role", "HL7 Role")
	roleValue := roleAttr.CreateElement("saml2:AttributeValue")
	roleEl := roleValue.CreateElement("hl7:Role")
	roleEl.CreateAttr("xmlns:hl7", "urn:hl7-org:v3")
	roleEl.CreateAttr("code", attrs.RoleCode)
	roleEl.CreateAttr("codeSystem", hl7RoleCodeSystem)
	roleEl.CreateAttr("codeSystemName", hl7RoleSystemName)

	authnStatement := assertion.CreateElement("saml2:AuthnStatement")
	authnStatement.CreateAttr("AuthnInstant", formatSAMLTime(now))
	authnContext := authnStatement.CreateElement("saml2:AuthnContext")
	authnContextClassRef := authnContext.CreateElement("saml2:AuthnContextClassRef")
	authnContextClassRef.SetText(authnContextPassword)

	canon := soapdsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	ref := soapdsig.Reference{URI: "#_" + assertionID}
	if err := soapdsig.DigestReference(&ref, assertion, canon); err != nil {
		return nil, fmt.Errorf("digest assertion: %w", err)
	}
	signedInfo := soapdsig.BuildSignedInfo([]soapdsig.Reference{ref}, true)
	sigValue, err := soapdsig.SignSignedInfo(signedInfo, key, canon)
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}
	signature := soapdsig.BuildSignature(signedInfo, sigValue, soapdsig.BuildX509KeyInfo(cert))

	// The enveloped signature is inserted as Issuer's next sibling, matching
	// the canonical SAML assertion signature placement.
	assertion.InsertChildAt(1, signature)

	security := etree.NewElement("wsse:Security")
	security.CreateAttr("xmlns:wsse", soapdsig.WSSENamespace)
	security.AddChild(assertion)

	return &Built{Security: security, RefID: assertionID}, nil
}

func addAttribute(parent *etree.Element, name, friendlyName, value string) {
	attr := newAttribute(parent, name, friendlyName)
	v := attr.CreateElement("saml2:AttributeValue")
	v.SetText(value)
}

func newAttribute(parent *etree.Element, name, friendlyName string) *etree.Element {
	attr := parent.CreateElement("saml2:Attribute")
	attr.CreateAttr("Name", name)
	if friendlyName != "" {
		attr.CreateAttr("FriendlyName", friendlyName)
	}
	return attr
}

func subjectDistinguishedName(name pkix.Name) string {
	return name.String()
}

func formatSAMLTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000") + "Z"
}
