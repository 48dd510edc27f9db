package analyzer

import "strconv"

type tagPair struct {
	key   string
	value string
}

// parseTag splits a struct tag into its key:"value" pairs following the
// conventional format understood by reflect.StructTag. Parsing stops at the
// first malformed pair.
func parseTag(tag string) []tagPair {
	var pairs []tagPair
	for tag != "" {
		i := 0
		for i < len(tag) && tag[i] == ' ' {
			i++
		}
		tag = tag[i:]
		if tag == "" {
			break
		}

		i = 0
		for i < len(tag) && tag[i] > ' ' && tag[i] != ':' && tag[i] != '"' && tag[i] != 0x7f {
			i++
		}
		if i == 0 || i+1 >= len(tag) || tag[i] != ':' || tag[i+1] != '"' {
			break
		}
		key := tag[:i]
		tag = tag[i+1:]

		i = 1
		for i < len(tag) && tag[i] != '"' {
			if tag[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(tag) {
			break
		}
		quoted := tag[:i+1]
		tag = tag[i+1:]

		value, err := strconv.Unquote(quoted)
		if err != nil {
			break
		}
		pairs = append(pairs, tagPair{key: key, value: value})
	}
	return pairs
}
