package backend

import (
	"github.com/hyperjump/yomu/internal/models"
	"github.com/ledongthuc/pdf"
)

const (
	maxOutlineNodes = 10000
	maxOutlineDepth = 64
)

// outlineLevel walks one sibling chain of the outline tree. budget bounds the total number of
// visited nodes so that cyclic Next/First links terminate.
func (d *pdfDocument) outlineLevel(root, node pdf.Value, depth int, budget *int) []models.Bookmark {
	items := []models.Bookmark{}
	if depth > maxOutlineDepth {
		return items
	}
	for !node.IsNull() && node.Kind() == pdf.Dict && *budget > 0 {
		*budget--
		item := models.Bookmark{
			Title:     node.Key("Title").Text(),
			PageIndex: d.destinationPage(root, node),
			Children:  d.outlineLevel(root, node.Key("First"), depth+1, budget),
		}
		items = append(items, item)
		node = node.Key("Next")
	}
	return items
}

// destinationPage resolves an outline item's Dest or GoTo action to a page index.
func (d *pdfDocument) destinationPage(root, item pdf.Value) *int {
	dest := item.Key("Dest")
	if dest.IsNull() {
		action := item.Key("A")
		if action.Key("S").Name() != "GoTo" {
			return nil
		}
		dest = action.Key("D")
	}
	dest = d.resolveNamedDest(root, dest)
	if dest.Kind() == pdf.Dict {
		dest = dest.Key("D")
	}
	if dest.Kind() != pdf.Array || dest.Len() == 0 {
		return nil
	}
	target := dest.Index(0)
	switch target.Kind() {
	case pdf.Integer:
		// remote-style destinations carry the page number directly
		n := int(target.Int64())
		if n < 0 || n >= d.reader.NumPage() {
			return nil
		}
		return &n
	case pdf.Dict:
		if idx, ok := d.pageIndexOf(target); ok {
			return &idx
		}
	}
	return nil
}

func (d *pdfDocument) resolveNamedDest(root, dest pdf.Value) pdf.Value {
	var name string
	switch dest.Kind() {
	case pdf.Name:
		name = dest.Name()
	case pdf.String:
		name = dest.Text()
	default:
		return dest
	}
	// PDF 1.1 style: /Dests dictionary in the catalog
	if v := root.Key("Dests").Key(name); !v.IsNull() {
		return v
	}
	return lookupNameTree(root.Key("Names").Key("Dests"), name, 0)
}

func lookupNameTree(node pdf.Value, name string, depth int) pdf.Value {
	if node.IsNull() || depth > maxOutlineDepth {
		return pdf.Value{}
	}
	names := node.Key("Names")
	for i := 0; i+1 < names.Len(); i += 2 {
		if names.Index(i).Text() == name {
			return names.Index(i + 1)
		}
	}
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		limits := kid.Key("Limits")
		if limits.Len() == 2 {
			lo, hi := limits.Index(0).Text(), limits.Index(1).Text()
			if name < lo || name > hi {
				continue
			}
		}
		if v := lookupNameTree(kid, name, depth+1); !v.IsNull() {
			return v
		}
	}
	return pdf.Value{}
}

// pageIndexOf matches a page dictionary against the document's pages. The reader does not
// expose object references, so pages are compared by their serialized dictionaries, which
// print nested objects as "id gen R".
func (d *pdfDocument) pageIndexOf(page pdf.Value) (int, bool) {
	if d.pageKeys == nil {
		d.pageKeys = make(map[string]int, d.reader.NumPage())
		for i := 0; i < d.reader.NumPage(); i++ {
			key := d.reader.Page(i + 1).V.String()
			if _, dup := d.pageKeys[key]; !dup {
				d.pageKeys[key] = i
			}
		}
	}
	idx, ok := d.pageKeys[page.String()]
	return idx, ok
}
