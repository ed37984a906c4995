// CLAUDE:SUMMARY Blocks configured resource types on course tabs through request hijacking; documents, scripts and XHR always pass.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockAliases maps config names to CDP resource types.
var blockAliases = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// neverBlocked keeps the course player functional whatever the config says.
var neverBlocked = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeDocument: true,
	proto.NetworkResourceTypeScript:   true,
	proto.NetworkResourceTypeXHR:      true,
	proto.NetworkResourceTypeFetch:    true,
}

// blockSet resolves config names (aliases or raw CDP types) into a set.
func blockSet(names []string) map[proto.NetworkResourceType]bool {
	set := make(map[proto.NetworkResourceType]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if t, ok := blockAliases[n]; ok {
			set[t] = true
			continue
		}
		for _, t := range blockAliases {
			if strings.ToLower(string(t)) == n {
				set[t] = true
			}
		}
	}
	for t := range neverBlocked {
		delete(set, t)
	}
	return set
}

func applyResourceBlocking(page *rod.Page, names []string) error {
	set := blockSet(names)
	if len(set) == 0 {
		return nil
	}

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if set[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return err
	}
	go router.Run()
	return nil
}
