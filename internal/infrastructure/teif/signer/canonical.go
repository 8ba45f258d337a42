package signer

import (
	"github.com/beevik/etree"
	"github.com/jhoicas/teif-firma/internal/domain"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"
)

// Exclusive C14N 1.0 sin comentarios, sin prefijos inclusivos.
var excC14N = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

// Canonicalize serializa de forma determinista un documento o fragmento XML:
// sin comentarios, atributos ordenados, CDATA resuelto a texto y sin espacios
// entre elementos. Es idempotente.
func Canonicalize(xml string) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return "", domain.ErrMalformedDocument.Wrap(err)
	}
	root := doc.Root()
	if root == nil {
		return "", domain.ErrMalformedDocument
	}
	out, err := CanonicalizeElement(root)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CanonicalizeElement canonicaliza un subárbol con el contexto de namespaces de sus ancestros.
// No modifica el elemento recibido.
func CanonicalizeElement(el *etree.Element) ([]byte, error) {
	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return nil, domain.ErrMalformedDocument.Wrap(err)
	}
	detached, err := etreeutils.NSDetatch(ctx, el)
	if err != nil {
		return nil, domain.ErrMalformedDocument.Wrap(err)
	}
	normalize(detached)
	out, err := excC14N.Canonicalize(detached)
	if err != nil {
		return nil, domain.ErrMalformedDocument.Wrap(err)
	}
	return out, nil
}

// normalize quita comentarios y los nodos de texto solo-espacio en elementos con hijos elemento.
// El texto de las hojas se conserva tal cual.
func normalize(el *etree.Element) {
	hasChildElements := len(el.ChildElements()) > 0
	for i := len(el.Child) - 1; i >= 0; i-- {
		switch t := el.Child[i].(type) {
		case *etree.Comment:
			el.RemoveChildAt(i)
		case *etree.CharData:
			if hasChildElements && t.IsWhitespace() {
				el.RemoveChildAt(i)
			}
		case *etree.Element:
			normalize(t)
		}
	}
}
