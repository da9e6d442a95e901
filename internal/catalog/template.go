package catalog

import "strings"

// Expand substitutes {name} placeholders in each argument. Placeholders
// without a value are left untouched.
func Expand(args []string, vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// ExpandList is Expand, except an argument that is exactly "{name}" for a
// key of lists is replaced by that list's elements.
func ExpandList(args []string, vars map[string]string, lists map[string][]string) []string {
	var out []string
	for _, a := range args {
		if strings.HasPrefix(a, "{") && strings.HasSuffix(a, "}") {
			if list, ok := lists[a[1:len(a)-1]]; ok {
				out = append(out, list...)
				continue
			}
		}
		out = append(out, Expand([]string{a}, vars)...)
	}
	return out
}
