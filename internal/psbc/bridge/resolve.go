package bridge

import (
	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/pkg/errorx"
)

// plotCandidate is one entry of MultiplePlots' available_plots payload
// (spec §4.5, §6).
type plotCandidate struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
}

// resolveDoc implements the three-way implicit-document branch (spec
// §4.5): an explicit filename is looked up directly; an omitted one
// resolves to the single open plot, or fails MultiplePlots/ResourceNotFound.
func (s *Server) resolveDoc(filename string) (identity.DocID, error) {
	if filename != "" {
		id, ok := s.registry.ByPath(filename)
		if !ok {
			return "", errorx.New(errno.ResourceNotFound, "unknown plot "+filename, nil)
		}
		return id, nil
	}

	ids := s.registry.All()
	switch len(ids) {
	case 0:
		return "", errorx.New(errno.ResourceNotFound, "no plot is open", nil)
	case 1:
		return ids[0], nil
	default:
		candidates := make([]plotCandidate, 0, len(ids))
		for _, id := range ids {
			path, _ := s.registry.Path(id)
			candidates = append(candidates, plotCandidate{Filename: path, Title: path})
		}
		return "", errorx.New(errno.MultiplePlots, "multiple plots are open", candidates)
	}
}
