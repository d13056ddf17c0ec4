// Package registry is the in-memory ContractMetadata/version catalogue
// (spec §4.7): register, lookup, version listing, consumer set management,
// and the one-time zero-address-to-deployed-address transition.
package registry

import (
	"sync"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// Registry is the ContractRegistry of spec §4.7, grounded in the teacher's
// keyed contract-info map (`infrastructure/chain/contract_registry.go`)
// generalized from name-keyed platform contracts to contract-id-keyed
// ContractMetadata with a versions sub-catalogue.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*domain.ContractMetadata
	versions  map[string]*domain.ContractVersion
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		contracts: make(map[string]*domain.ContractMetadata),
		versions:  make(map[string]*domain.ContractVersion),
	}
}

// RegisterVersion adds a deployable version to the catalogue. A
// ContractMetadata may only name a CurrentVersionID already present here.
func (r *Registry) RegisterVersion(v *domain.ContractVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[v.VersionID] = v
}

// Register adds a new contract, enforcing that its CurrentVersionID already
// exists in the version catalogue (spec §4.7's invariant).
func (r *Registry) Register(meta *domain.ContractMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if meta.CurrentVersionID != "" {
		if _, ok := r.versions[meta.CurrentVersionID]; !ok {
			return errs.Validation("current_version_id does not exist in the version catalogue")
		}
	}
	if meta.Address == "" {
		meta.Address = domain.ZeroAddress
	}
	if meta.Consumers == nil {
		meta.Consumers = make(map[string]struct{})
	}
	r.contracts[meta.ContractID] = meta
	return nil
}

// Get looks up a contract by id.
func (r *Registry) Get(contractID string) (*domain.ContractMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.contracts[contractID]
	return meta, ok
}

// GetVersion looks up a version by id.
func (r *Registry) GetVersion(versionID string) (*domain.ContractVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[versionID]
	return v, ok
}

// ListVersions returns every registered version for a contract, matched by
// whichever versions the contract's history has pointed CurrentVersionID at;
// since the catalogue itself is flat, callers track history via
// RegisterVersion, so this simply lists every version known to the registry.
func (r *Registry) ListVersions() []*domain.ContractVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ContractVersion, 0, len(r.versions))
	for _, v := range r.versions {
		out = append(out, v)
	}
	return out
}

// List returns every registered contract.
func (r *Registry) List() []*domain.ContractMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ContractMetadata, 0, len(r.contracts))
	for _, meta := range r.contracts {
		out = append(out, meta)
	}
	return out
}

// FindByDataSource returns every contract that names sourceID among its
// data sources (spec §4.7 "lookup by id / type / network" — the data-source
// axis of that lookup).
func (r *Registry) FindByDataSource(sourceID string) []*domain.ContractMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.ContractMetadata
	for _, meta := range r.contracts {
		for _, s := range meta.DataSources {
			if s == sourceID {
				out = append(out, meta)
				break
			}
		}
	}
	return out
}

// AddConsumer adds consumerID to a contract's consumer set.
func (r *Registry) AddConsumer(contractID, consumerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.contracts[contractID]
	if !ok {
		return errs.Validation("unknown contract: " + contractID)
	}
	if meta.Consumers == nil {
		meta.Consumers = make(map[string]struct{})
	}
	meta.Consumers[consumerID] = struct{}{}
	return nil
}

// RemoveConsumer removes consumerID from a contract's consumer set.
func (r *Registry) RemoveConsumer(contractID, consumerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.contracts[contractID]
	if !ok {
		return errs.Validation("unknown contract: " + contractID)
	}
	delete(meta.Consumers, consumerID)
	return nil
}

// UpdateAddressOnDeploy mutates a contract's address from the zero-address
// placeholder to its deployed address. Spec §4.7: "Deployment mutates
// address from the zero-address placeholder exactly once" — a contract
// whose address is already non-zero cannot be re-deployed through this path.
func (r *Registry) UpdateAddressOnDeploy(contractID, deployedAddress, versionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.contracts[contractID]
	if !ok {
		return errs.Validation("unknown contract: " + contractID)
	}
	if meta.Address != domain.ZeroAddress {
		return errs.Validation("contract " + contractID + " has already been deployed")
	}
	if versionID != "" {
		if _, ok := r.versions[versionID]; !ok {
			return errs.Validation("current_version_id does not exist in the version catalogue")
		}
		meta.CurrentVersionID = versionID
	}
	meta.Address = deployedAddress
	return nil
}

// SetVersion points a contract at a new CurrentVersionID, enforcing that it
// already exists in the version catalogue.
func (r *Registry) SetVersion(contractID, versionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.contracts[contractID]
	if !ok {
		return errs.Validation("unknown contract: " + contractID)
	}
	if _, ok := r.versions[versionID]; !ok {
		return errs.Validation("current_version_id does not exist in the version catalogue")
	}
	meta.CurrentVersionID = versionID
	return nil
}
