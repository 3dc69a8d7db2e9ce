package files

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

var (
	coreNames = map[string]bool{
		"TokenCore":    true,
		"Token":        true,
		"SupplyOracle": true,
		"Governance":   true,
	}
	infrastructureNames = map[string]bool{
		"CrossChainRouter": true,
		"FeeManager":       true,
		"SecurityManager":  true,
		"ProtocolRegistry": true,
		"ProxyAdmin":       true,
		"Timelock":         true,
	}
)

// Classify picks the category a contract is filed under in a unified snapshot
func Classify(contractName string) models.Category {
	switch {
	case coreNames[contractName]:
		return models.CategoryCore
	case strings.Contains(contractName, "Module"):
		return models.CategoryProtocol
	case infrastructureNames[contractName]:
		return models.CategoryInfrastructure
	default:
		return models.CategoryCore
	}
}

// unifiedDoc wraps a hierarchical snapshot
type unifiedDoc struct {
	snap *models.UnifiedSnapshot
}

func newUnifiedDoc(snap *models.UnifiedSnapshot) *unifiedDoc {
	if snap.Contracts == nil {
		snap.Contracts = make(map[models.Category]map[string]*models.ContractRecord)
	}
	for _, c := range models.Categories {
		if snap.Contracts[c] == nil {
			snap.Contracts[c] = make(map[string]*models.ContractRecord)
		}
		normalizeRecords(snap.Contracts[c], snap.ChainID, snap.Network)
	}
	if snap.Legacy == nil {
		snap.Legacy = make(map[string]models.LegacyAlias)
	}
	if snap.Hashes == nil {
		snap.Hashes = make(map[string]models.HashInfo)
	}
	if snap.ProtocolsDeployed == nil {
		snap.ProtocolsDeployed = []string{}
	}
	return &unifiedDoc{snap: snap}
}

// convertFlat builds the hierarchical shape from a flat snapshot
func convertFlat(flat *models.Snapshot, now time.Time) *unifiedDoc {
	snap := models.NewUnifiedSnapshot(flat.ChainID, flat.Network, now)
	if !flat.CreatedAt.IsZero() {
		snap.CreatedAt = flat.CreatedAt
	}
	if !flat.LastUpdated.IsZero() {
		snap.LastUpdated = flat.LastUpdated
	}
	snap.MigratedFrom = flat.SchemaVersion
	if snap.MigratedFrom == "" {
		snap.MigratedFrom = models.FlatSchemaVersion
	}

	doc := newUnifiedDoc(snap)
	normalizeRecords(flat.Contracts, flat.ChainID, flat.Network)
	for _, rec := range sortedRecords(flat.Contracts) {
		doc.put(rec.Clone())
	}
	for name, h := range flat.Hashes {
		if _, ok := doc.get(name); ok {
			snap.Hashes[name] = h
		}
	}
	return doc
}

func (d *unifiedDoc) chainID() uint64 { return d.snap.ChainID }
func (d *unifiedDoc) network() string { return d.snap.Network }
func (d *unifiedDoc) value() any      { return d.snap }

func (d *unifiedDoc) locate(name string) (*models.ContractRecord, models.Category, bool) {
	for _, c := range models.Categories {
		if rec, ok := d.snap.Contracts[c][name]; ok && rec != nil {
			return rec, c, true
		}
	}
	return nil, "", false
}

func (d *unifiedDoc) get(name string) (*models.ContractRecord, bool) {
	rec, _, ok := d.locate(name)
	return rec, ok
}

// resolve follows at most one alias hop
func (d *unifiedDoc) resolve(name string) (*models.ContractRecord, bool, bool) {
	if rec, ok := d.get(name); ok {
		return rec, false, true
	}
	alias, ok := d.snap.Legacy[name]
	if !ok {
		return nil, false, false
	}
	if alias.CurrentCategory != "" {
		rec, ok := d.snap.Contracts[alias.CurrentCategory][alias.CurrentName]
		return rec, true, ok && rec != nil
	}
	rec, ok := d.get(alias.CurrentName)
	return rec, true, ok
}

func (d *unifiedDoc) all() []*models.ContractRecord {
	var out []*models.ContractRecord
	seen := map[string]bool{}
	for _, c := range models.Categories {
		for _, rec := range sortedRecords(d.snap.Contracts[c]) {
			if seen[rec.ContractName] {
				continue
			}
			seen[rec.ContractName] = true
			out = append(out, rec)
		}
	}
	domain.SortByKey(out)
	return out
}

func (d *unifiedDoc) put(rec *models.ContractRecord) {
	target := Classify(rec.ContractName)
	for _, c := range models.Categories {
		if c != target {
			delete(d.snap.Contracts[c], rec.ContractName)
		}
	}
	d.snap.Contracts[target][rec.ContractName] = rec
	d.snap.Hashes[rec.ContractName] = hashInfo(rec)
	d.refreshProtocols()
}

// remove deletes a record and every alias pointing at it
func (d *unifiedDoc) remove(name string) bool {
	removed := false
	for _, c := range models.Categories {
		if _, ok := d.snap.Contracts[c][name]; ok {
			delete(d.snap.Contracts[c], name)
			removed = true
		}
	}
	if !removed {
		return false
	}
	delete(d.snap.Hashes, name)
	for old, alias := range d.snap.Legacy {
		if alias.CurrentName == name {
			delete(d.snap.Legacy, old)
		}
	}
	d.refreshProtocols()
	return true
}

func (d *unifiedDoc) refreshProtocols() {
	d.snap.ProtocolsDeployed = protocolsOf(lo.Keys(d.snap.Contracts[models.CategoryProtocol]))
}

func (d *unifiedDoc) touch(now time.Time) {
	d.snap.LastUpdated = now.UTC()
}

// setAlias records oldName as a pointer to an existing record
func (d *unifiedDoc) setAlias(oldName, currentName string) error {
	key := domain.GenerateKey(d.snap.ChainID, oldName)
	if oldName == currentName {
		return domain.NewError(domain.KindValidationFailed, "alias must differ from its target", nil, map[string]any{"key": key})
	}
	if _, ok := d.get(oldName); ok {
		return domain.NewError(domain.KindValidationFailed, "alias name is a live record", nil, map[string]any{"key": key})
	}
	_, category, ok := d.locate(currentName)
	if !ok {
		return domain.NewError(domain.KindValidationFailed, "alias target does not exist", nil, map[string]any{
			"key":    key,
			"target": domain.GenerateKey(d.snap.ChainID, currentName),
		})
	}
	d.snap.Legacy[oldName] = models.LegacyAlias{CurrentName: currentName, CurrentCategory: category}
	return nil
}

func (d *unifiedDoc) clone() document {
	c := *d.snap
	c.Contracts = make(map[models.Category]map[string]*models.ContractRecord, len(d.snap.Contracts))
	for cat, m := range d.snap.Contracts {
		c.Contracts[cat] = cloneRecords(m)
	}
	c.Legacy = make(map[string]models.LegacyAlias, len(d.snap.Legacy))
	for k, v := range d.snap.Legacy {
		c.Legacy[k] = v
	}
	c.Hashes = make(map[string]models.HashInfo, len(d.snap.Hashes))
	for k, v := range d.snap.Hashes {
		c.Hashes[k] = v
	}
	c.ProtocolsDeployed = append([]string{}, d.snap.ProtocolsDeployed...)
	return &unifiedDoc{snap: &c}
}

func (d *unifiedDoc) check(report *domain.IntegrityReport) {
	network := d.snap.Network
	if d.snap.SchemaVersion != models.UnifiedSchemaVersion {
		report.AddWarning("%s: unexpected schemaVersion %q", network, d.snap.SchemaVersion)
	}

	merged := map[string]*models.ContractRecord{}
	homes := map[string][]string{}
	for _, c := range models.Categories {
		for name, rec := range d.snap.Contracts[c] {
			homes[name] = append(homes[name], string(c))
			if _, ok := merged[name]; !ok {
				merged[name] = rec
			}
		}
	}
	for cat := range d.snap.Contracts {
		if !lo.Contains(models.Categories, cat) {
			report.AddError("%s: unknown category %q", network, cat)
		}
	}
	names := lo.Keys(homes)
	sort.Strings(names)
	for _, name := range names {
		if len(homes[name]) > 1 {
			report.AddError("%s: present in several categories (%s)", domain.GenerateKey(d.snap.ChainID, name), strings.Join(homes[name], ", "))
		}
	}
	checkRecords(report, network, d.snap.ChainID, merged, d.snap.Hashes)

	for old, alias := range d.snap.Legacy {
		key := domain.GenerateKey(d.snap.ChainID, old)
		if _, ok := d.snap.Legacy[alias.CurrentName]; ok {
			report.AddWarning("%s: alias points at another alias %q, which is not followed", key, alias.CurrentName)
			continue
		}
		if _, _, ok := d.resolve(old); !ok {
			report.AddWarning("%s: alias target %q does not exist", key, alias.CurrentName)
		}
	}
}
