package public

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"os"

	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
)

// rewriteDiscoveryXML parses the on-disk discovery document at path and
// rewrites every "action" element's "urlsrc" attribute to advertisedURL,
// leaving every other element and attribute untouched. It streams tokens
// rather than unmarshaling into a fixed schema, since spec.md §4.5 only
// constrains the one attribute and the document's schema is otherwise a
// collaborator contract.
func rewriteDiscoveryXML(path, advertisedURL string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewInternalError("read discovery document", err)
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var out bytes.Buffer
	enc := xml.NewEncoder(&out)

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "action" {
			for i := range start.Attr {
				if start.Attr[i].Name.Local == "urlsrc" {
					start.Attr[i].Value = advertisedURL
				}
			}
			tok = start
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, apperrors.NewInternalError("encode discovery document", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, apperrors.NewInternalError("flush discovery document", err)
	}
	return out.Bytes(), nil
}

// discoveryCapabilities mirrors the original loolwsd's lightweight
// capability probe (SPEC_FULL.md supplemented feature 1): the same
// on-disk document's advertised formats, read-only, never mutating
// brokering state.
type discoveryCapabilities struct {
	Formats             []string `json:"formats"`
	MaxDocumentSizeBytes int64   `json:"max_document_size_bytes"`
}

func readDiscoveryCapabilities(path string, maxDocumentSize int64) (*discoveryCapabilities, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewInternalError("read discovery document", err)
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	caps := &discoveryCapabilities{MaxDocumentSizeBytes: maxDocumentSize}
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "action" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "ext" {
				caps.Formats = append(caps.Formats, attr.Value)
			}
		}
	}
	return caps, nil
}

func (rt *Routes) handleDiscovery(w http.ResponseWriter, r *http.Request) error {
	advertised := fmt.Sprintf("https://%s/loleaflet/dist/loleaflet.html?", r.Host)
	body, err := rewriteDiscoveryXML(rt.DiscoveryXMLPath, advertised)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/xml")
	_, err = w.Write(body)
	return err
}

func (rt *Routes) handleCapabilities(w http.ResponseWriter, _ *http.Request) error {
	caps, err := readDiscoveryCapabilities(rt.DiscoveryXMLPath, rt.MaxDocumentSizeBytes)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(caps)
}
