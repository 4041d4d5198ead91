// Package services wires the apigov components from configuration.
//
// Open builds everything a validation run needs: the text generator, the
// embedder, a read-only policy index, the governance pipeline and the runner.
// OpenIngest builds the writable index and policy ingester used to (re)build
// the index. Accessor methods return individual services; Close releases them.
package services
