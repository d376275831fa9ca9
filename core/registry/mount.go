package registry

import "github.com/yrest-dev/yrest/core/tree"

// MountTree assembles a nested subtree document from a flat list of
// raw documents. Child-list entries are replaced in place, in the
// parent's declared order; consumed elements are removed from the
// list. The mounted object carries its child-list field names under
// "lists" so clients can walk it generically.
func (r *Registry) MountTree(elements *[]map[string]any, obj map[string]any) map[string]any {
	d, ok := r.Lookup(str(obj["type"]))
	if !ok {
		return obj
	}
	url := tree.URL(str(obj["path"]), str(obj["slug"]))

	lists := make([]string, 0, len(d.ChildFields))
	for _, cf := range d.ChildFields {
		lists = append(lists, cf.Name)
	}
	obj["lists"] = lists

	for _, list := range lists {
		children, ok := obj[list].([]any)
		if !ok {
			continue
		}
		for idx, child := range children {
			element, found := pop(elements, url, child)
			if !found {
				continue
			}
			if ed, ok := r.Lookup(str(element["type"])); ok && len(ed.ChildFields) > 0 {
				children[idx] = r.MountTree(elements, element)
			} else {
				children[idx] = element
			}
		}
	}
	return obj
}

func pop(elements *[]map[string]any, path string, slug any) (map[string]any, bool) {
	for i, element := range *elements {
		if element["path"] == path && element["slug"] == slug {
			*elements = append((*elements)[:i], (*elements)[i+1:]...)
			return element, true
		}
	}
	return nil, false
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
