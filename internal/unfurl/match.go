package unfurl

import "regexp"

// captures returns the named groups of the first matcher that matches url.
func captures(matchers []*regexp.Regexp, url string) (map[string]string, bool) {
	for _, re := range matchers {
		m := re.FindStringSubmatch(url)
		if m == nil {
			continue
		}
		out := map[string]string{}
		for i, name := range re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			out[name] = m[i]
		}
		return out, true
	}
	return nil, false
}

// MatchLink walks handlers in order and returns the first one whose patterns
// match url, together with the raw captures.
func MatchLink(handlers []Handler, url string) (*Handler, map[string]string, bool) {
	for i := range handlers {
		if raw, ok := captures(handlers[i].Matchers, url); ok {
			return &handlers[i], raw, true
		}
	}
	return nil, nil, false
}
