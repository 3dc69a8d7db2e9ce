package files

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// document is the in-memory form of one network's snapshot file
type document interface {
	chainID() uint64
	network() string

	// get returns a stored record by its own name
	get(name string) (*models.ContractRecord, bool)
	// resolve is get plus any alias indirection; aliased reports whether
	// the record was reached through an alias
	resolve(name string) (rec *models.ContractRecord, aliased bool, ok bool)
	all() []*models.ContractRecord

	put(rec *models.ContractRecord)
	remove(name string) bool
	touch(now time.Time)

	clone() document
	check(report *domain.IntegrityReport)
	// value is what gets serialized to disk
	value() any
}

// flatDoc wraps a flat snapshot
type flatDoc struct {
	snap *models.Snapshot
}

func newFlatDoc(snap *models.Snapshot) *flatDoc {
	if snap.Contracts == nil {
		snap.Contracts = make(map[string]*models.ContractRecord)
	}
	if snap.Hashes == nil {
		snap.Hashes = make(map[string]models.HashInfo)
	}
	if snap.ProtocolsDeployed == nil {
		snap.ProtocolsDeployed = []string{}
	}
	normalizeRecords(snap.Contracts, snap.ChainID, snap.Network)
	return &flatDoc{snap: snap}
}

func (d *flatDoc) chainID() uint64 { return d.snap.ChainID }
func (d *flatDoc) network() string { return d.snap.Network }
func (d *flatDoc) value() any      { return d.snap }

func (d *flatDoc) get(name string) (*models.ContractRecord, bool) {
	rec, ok := d.snap.Contracts[name]
	return rec, ok && rec != nil
}

func (d *flatDoc) resolve(name string) (*models.ContractRecord, bool, bool) {
	rec, ok := d.get(name)
	return rec, false, ok
}

func (d *flatDoc) all() []*models.ContractRecord {
	return sortedRecords(d.snap.Contracts)
}

func (d *flatDoc) put(rec *models.ContractRecord) {
	d.snap.Contracts[rec.ContractName] = rec
	d.snap.Hashes[rec.ContractName] = hashInfo(rec)
	d.snap.ProtocolsDeployed = protocolsOf(lo.Keys(d.snap.Contracts))
}

func (d *flatDoc) remove(name string) bool {
	if _, ok := d.snap.Contracts[name]; !ok {
		return false
	}
	delete(d.snap.Contracts, name)
	delete(d.snap.Hashes, name)
	d.snap.ProtocolsDeployed = protocolsOf(lo.Keys(d.snap.Contracts))
	return true
}

func (d *flatDoc) touch(now time.Time) {
	d.snap.LastUpdated = now.UTC()
}

func (d *flatDoc) clone() document {
	c := *d.snap
	c.Contracts = cloneRecords(d.snap.Contracts)
	c.Hashes = make(map[string]models.HashInfo, len(d.snap.Hashes))
	for k, v := range d.snap.Hashes {
		c.Hashes[k] = v
	}
	c.ProtocolsDeployed = append([]string{}, d.snap.ProtocolsDeployed...)
	return &flatDoc{snap: &c}
}

func (d *flatDoc) check(report *domain.IntegrityReport) {
	if d.snap.SchemaVersion != models.FlatSchemaVersion {
		report.AddWarning("%s: unexpected schemaVersion %q", d.snap.Network, d.snap.SchemaVersion)
	}
	checkRecords(report, d.snap.Network, d.snap.ChainID, d.snap.Contracts, d.snap.Hashes)
}

// Shared helpers

func hashInfo(rec *models.ContractRecord) models.HashInfo {
	return models.HashInfo{
		FactoryByteCodeHash: rec.FactoryByteCodeHash,
		ImplementationHash:  rec.ImplementationHash,
	}
}

// protocolsOf derives the sorted, deduplicated protocol list from module names
func protocolsOf(names []string) []string {
	protocols := lo.Uniq(lo.FilterMap(names, func(name string, _ int) (string, bool) {
		p := models.ProtocolName(name)
		return p, p != ""
	}))
	sort.Strings(protocols)
	if protocols == nil {
		protocols = []string{}
	}
	return protocols
}

func sortedRecords(m map[string]*models.ContractRecord) []*models.ContractRecord {
	names := lo.Keys(m)
	sort.Strings(names)
	out := make([]*models.ContractRecord, 0, len(names))
	for _, name := range names {
		if rec := m[name]; rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

func cloneRecords(m map[string]*models.ContractRecord) map[string]*models.ContractRecord {
	out := make(map[string]*models.ContractRecord, len(m))
	for k, rec := range m {
		out[k] = rec.Clone()
	}
	return out
}

// normalizeRecords fills fields older files leave implicit
func normalizeRecords(m map[string]*models.ContractRecord, chainID uint64, network string) {
	for name, rec := range m {
		if rec == nil {
			delete(m, name)
			continue
		}
		if rec.ContractName == "" {
			rec.ContractName = name
		}
		if rec.ChainID == 0 {
			rec.ChainID = chainID
		}
		if rec.NetworkName == "" {
			rec.NetworkName = network
		}
	}
}

func checkRecords(report *domain.IntegrityReport, network string, chainID uint64, contracts map[string]*models.ContractRecord, hashes map[string]models.HashInfo) {
	for _, name := range lo.Keys(contracts) {
		rec := contracts[name]
		key := domain.GenerateKey(chainID, name)
		if err := domain.IsValidRecord(rec); err != nil {
			report.AddError("%s: %v", key, err)
			continue
		}
		if rec.ContractName != name {
			report.AddError("%s: stored under name %q but record says %q", key, name, rec.ContractName)
			continue
		}
		if rec.ChainID != chainID {
			report.AddError("%s: record chainId %d does not match %s file", key, rec.ChainID, network)
			continue
		}
		if !domain.HashConsistent(rec) {
			report.AddWarning("%s: implementationHash differs from factoryByteCodeHash", key)
		}
		if h, ok := hashes[name]; !ok {
			report.AddWarning("%s: missing hash bookkeeping", key)
		} else if h != hashInfo(rec) {
			report.AddWarning("%s: hash bookkeeping is stale", key)
		}
		report.ContractCount++
	}
	for name := range hashes {
		if _, ok := contracts[name]; !ok {
			report.AddWarning("%s: hash bookkeeping without a record", domain.GenerateKey(chainID, name))
		}
	}
}
