package search

import "github.com/poiesic/yellowbook/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Hooks may be called from several goroutines at once.
type SearchMonitor interface {
	Start(query core.SearchQuery)
	CacheHit(key string)
	AfterRecordRetrieval(records []*core.Record)
	EmbeddingFailed(err error)
	AfterRanking(mode core.SearchMode, ranked []core.RankedRecord)
	Finish(result *core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.SearchQuery)                              {}
func (n *noopMonitor) CacheHit(_ string)                                     {}
func (n *noopMonitor) AfterRecordRetrieval(_ []*core.Record)                 {}
func (n *noopMonitor) EmbeddingFailed(_ error)                               {}
func (n *noopMonitor) AfterRanking(_ core.SearchMode, _ []core.RankedRecord) {}
func (n *noopMonitor) Finish(_ *core.SearchResult)                           {}
