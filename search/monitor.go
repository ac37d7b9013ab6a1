package search

import (
	"github.com/poiesic/shelfmark/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterSemanticSearch(ids []core.ID)
	AfterRecordRetrieval(records []*core.CanonicalRecord)
	TitleHit(record *core.CanonicalRecord)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                 {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.ID)                {}
func (n *noopMonitor) AfterRecordRetrieval(_ []*core.CanonicalRecord) {}
func (n *noopMonitor) TitleHit(_ *core.CanonicalRecord)               {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)                  {}
