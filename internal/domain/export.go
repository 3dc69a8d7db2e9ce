package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"gopkg.in/yaml.v3"
)

// Export formats
const (
	ExportFormatJSON = "json"
	ExportFormatYAML = "yaml"

	ExportVersion = "1.0.0"
)

// ExportOptions selects what ExportAll serializes and how
type ExportOptions struct {
	Format          string
	ChainIDs        []uint64
	IncludeMetadata bool
	PrettyPrint     bool
}

// Includes reports whether records of chainID are part of the export
func (o ExportOptions) Includes(chainID uint64) bool {
	return len(o.ChainIDs) == 0 || lo.Contains(o.ChainIDs, chainID)
}

// ExportMetadata summarizes an export
type ExportMetadata struct {
	ContractCount int               `json:"contractCount"`
	ChainIDs      []uint64          `json:"chainIds"`
	Networks      map[string]string `json:"networks,omitempty"`
}

// ExportEnvelope is the serialized blob exchanged by ExportAll and ImportAll
type ExportEnvelope struct {
	Version    string                   `json:"version"`
	Backend    string                   `json:"backend"`
	ExportedAt time.Time                `json:"exportedAt"`
	Metadata   *ExportMetadata          `json:"metadata,omitempty"`
	Contracts  []*models.ContractRecord `json:"contracts"`
}

// EncodeExport serializes records for ExportAll
func EncodeExport(backend string, records []*models.ContractRecord, opts ExportOptions, now time.Time) ([]byte, error) {
	selected := lo.Filter(records, func(rec *models.ContractRecord, _ int) bool {
		return opts.Includes(rec.ChainID)
	})
	SortByKey(selected)

	env := ExportEnvelope{
		Version:    ExportVersion,
		Backend:    backend,
		ExportedAt: now.UTC(),
		Contracts:  selected,
	}
	if opts.IncludeMetadata {
		meta := &ExportMetadata{
			ContractCount: len(selected),
			Networks:      make(map[string]string),
		}
		for _, rec := range selected {
			meta.Networks[strconv.FormatUint(rec.ChainID, 10)] = rec.NetworkName
		}
		meta.ChainIDs = lo.Uniq(lo.Map(selected, func(rec *models.ContractRecord, _ int) uint64 {
			return rec.ChainID
		}))
		env.Metadata = meta
	}
	if env.Contracts == nil {
		env.Contracts = []*models.ContractRecord{}
	}

	var (
		data []byte
		err  error
	)
	if opts.PrettyPrint {
		data, err = json.MarshalIndent(env, "", "  ")
	} else {
		data, err = json.Marshal(env)
	}
	if err != nil {
		return nil, NewError(KindSerialization, "failed to encode export", err, nil)
	}

	switch opts.Format {
	case "", ExportFormatJSON:
		return data, nil
	case ExportFormatYAML:
		return jsonToYAML(data)
	default:
		return nil, NewError(KindValidationFailed, "unsupported export format", nil, map[string]any{"format": opts.Format})
	}
}

// DecodeExport parses a blob produced by EncodeExport in either format and
// validates every record in it.
func DecodeExport(data []byte, opts DecodeOptions) (*ExportEnvelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewError(KindSerialization, "empty import payload", nil, nil)
	}
	if trimmed[0] != '{' {
		converted, err := yamlToJSON(trimmed)
		if err != nil {
			return nil, err
		}
		trimmed = converted
	}

	var raw struct {
		Version    string            `json:"version"`
		Backend    string            `json:"backend"`
		ExportedAt time.Time         `json:"exportedAt"`
		Metadata   *ExportMetadata   `json:"metadata,omitempty"`
		Contracts  []json.RawMessage `json:"contracts"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, NewError(KindSerialization, "failed to decode import payload", err, nil)
	}

	env := &ExportEnvelope{
		Version:    raw.Version,
		Backend:    raw.Backend,
		ExportedAt: raw.ExportedAt,
		Metadata:   raw.Metadata,
		Contracts:  make([]*models.ContractRecord, 0, len(raw.Contracts)),
	}
	for i, msg := range raw.Contracts {
		rec, err := DecodeRecord(msg, opts)
		if err != nil {
			return nil, NewError(KindSerialization, "invalid record in import payload", err, map[string]any{"index": i})
		}
		env.Contracts = append(env.Contracts, rec)
	}
	return env, nil
}

func jsonToYAML(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, NewError(KindSerialization, "failed to convert export to yaml", err, nil)
	}
	out, err := yaml.Marshal(yamlValue(tree))
	if err != nil {
		return nil, NewError(KindSerialization, "failed to convert export to yaml", err, nil)
	}
	return out, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, NewError(KindSerialization, "failed to decode yaml import payload", err, nil)
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, NewError(KindSerialization, "failed to decode yaml import payload", err, nil)
	}
	return out, nil
}

// yamlValue turns json.Number leaves into native numbers so yaml emits them
// unquoted. Integers that overflow 64 bits stay strings; big integers in args
// are tagged strings already.
func yamlValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return u
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i := range val {
			val[i] = yamlValue(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = yamlValue(val[k])
		}
		return val
	default:
		return val
	}
}
