// Package services provides the centralized service registry for knowledged
// and the request-level orchestration built on top of it.
//
// Registry pattern for accessing all core services (tenant directory, quota
// ledger, document registry, customization resolver, retrieval engine,
// answer assembler, vector store). Use NewRegistry() to create a registry
// with service instances, then accessor methods to retrieve individual
// services. AskService composes them into the end-to-end question flow.
package services
