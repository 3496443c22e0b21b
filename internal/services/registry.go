package services

import (
	"github.com/fyrsmithlabs/knowledged/internal/answer"
	"github.com/fyrsmithlabs/knowledged/internal/completion"
	"github.com/fyrsmithlabs/knowledged/internal/customize"
	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/quota"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Registry provides access to all knowledged services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Directory() *tenant.Directory
	Ledger() *quota.Ledger
	Documents() *document.Registry
	Customization() *customize.Resolver
	Retrieval() *retrieval.Engine
	Assembler() *answer.Assembler
	VectorStore() vectorstore.Store
	Embedder() embeddings.Embedder
	Completer() completion.Completer
}

// Options configures the registry with service instances.
type Options struct {
	Directory     *tenant.Directory
	Ledger        *quota.Ledger
	Documents     *document.Registry
	Customization *customize.Resolver
	Retrieval     *retrieval.Engine
	Assembler     *answer.Assembler
	VectorStore   vectorstore.Store
	Embedder      embeddings.Embedder
	Completer     completion.Completer
}

// registry is the concrete implementation of Registry.
type registry struct {
	directory     *tenant.Directory
	ledger        *quota.Ledger
	documents     *document.Registry
	customization *customize.Resolver
	retrieval     *retrieval.Engine
	assembler     *answer.Assembler
	vectorStore   vectorstore.Store
	embedder      embeddings.Embedder
	completer     completion.Completer
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		directory:     opts.Directory,
		ledger:        opts.Ledger,
		documents:     opts.Documents,
		customization: opts.Customization,
		retrieval:     opts.Retrieval,
		assembler:     opts.Assembler,
		vectorStore:   opts.VectorStore,
		embedder:      opts.Embedder,
		completer:     opts.Completer,
	}
}

func (r *registry) Directory() *tenant.Directory       { return r.directory }
func (r *registry) Ledger() *quota.Ledger              { return r.ledger }
func (r *registry) Documents() *document.Registry      { return r.documents }
func (r *registry) Customization() *customize.Resolver { return r.customization }
func (r *registry) Retrieval() *retrieval.Engine       { return r.retrieval }
func (r *registry) Assembler() *answer.Assembler       { return r.assembler }
func (r *registry) VectorStore() vectorstore.Store     { return r.vectorStore }
func (r *registry) Embedder() embeddings.Embedder      { return r.embedder }
func (r *registry) Completer() completion.Completer    { return r.completer }
