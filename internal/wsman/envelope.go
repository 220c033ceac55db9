package wsman

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

const (
	nsSOAPEnv = "http://www.w3.org/2003/05/soap-envelope"
	nsWSA     = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	nsWSMan   = "http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
	nsWSEnum  = "http://schemas.xmlsoap.org/ws/2004/09/enumeration"
	nsN1      = "http://schemas.dmtf.org/wbem/wscim/1/cim-schema/2/" // resource URI base
)

func newEnvelope() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAPEnv)
	env.CreateAttr("xmlns:wsa", nsWSA)
	env.CreateAttr("xmlns:wsman", nsWSMan)
	return doc
}

func addressingHeader(doc *etree.Document, action, resourceURI string) *etree.Element {
	env := doc.Root()
	header := env.CreateElement("s:Header")
	header.CreateElement("wsa:To").SetText("anonymous")
	header.CreateElement("wsa:Action").SetText(action)
	header.CreateElement("wsa:MessageID").SetText("uuid:" + uuid.NewString())
	header.CreateElement("wsman:ResourceURI").SetText(resourceURI)
	return header
}

// buildEnumerate constructs a WS-Enumeration Enumerate request, optionally
// scoped with a WQL filter query (e.g. "select * from DCIM_LifecycleJob
// where InstanceID = 'JID_123'").
func buildEnumerate(resourceURI, filter string) ([]byte, error) {
	doc := newEnvelope()
	addressingHeader(doc, "http://schemas.xmlsoap.org/ws/2004/09/enumeration/Enumerate", resourceURI)

	body := doc.Root().CreateElement("s:Body")
	enum := body.CreateElement("wsen:Enumerate")
	enum.CreateAttr("xmlns:wsen", nsWSEnum)

	if filter != "" {
		f := enum.CreateElement("wsman:Filter")
		f.CreateAttr("Dialect", "http://schemas.dmtf.org/wbem/cql/1/dsp0202.pdf")
		f.SetText(filter)
	}

	return doc.WriteToBytes()
}

// buildInvoke constructs a WS-MAN Invoke request against a CIM method,
// with selectors identifying the target instance and parallel-array-style
// properties as the method's input parameters.
func buildInvoke(resourceURI, method string, selectors map[string]string, properties map[string]any) ([]byte, error) {
	doc := newEnvelope()
	action := fmt.Sprintf("%s/%s", resourceURI, method)
	header := addressingHeader(doc, action, resourceURI)

	if len(selectors) > 0 {
		selectorSet := header.CreateElement("wsman:SelectorSet")
		for k, v := range selectors {
			sel := selectorSet.CreateElement("wsman:Selector")
			sel.CreateAttr("Name", k)
			sel.SetText(v)
		}
	}

	body := doc.Root().CreateElement("s:Body")
	methodEl := body.CreateElement("n1:" + method)
	methodEl.CreateAttr("xmlns:n1", nsN1)

	for k, v := range properties {
		switch val := v.(type) {
		case []string:
			for _, item := range val {
				methodEl.CreateElement("n1:" + k).SetText(item)
			}
		default:
			methodEl.CreateElement("n1:" + k).SetText(fmt.Sprintf("%v", val))
		}
	}

	return doc.WriteToBytes()
}
