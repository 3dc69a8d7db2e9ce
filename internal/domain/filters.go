package domain

import (
	"sort"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// Sort fields accepted by QueryOptions.SortBy
const (
	SortByTimestamp    = "timestamp"
	SortByContractName = "contractName"
	SortByChainID      = "chainId"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// QueryOptions defines filtering and ordering for record queries
type QueryOptions struct {
	ChainID      *uint64
	ContractName string
	NetworkName  string
	SortBy       string
	SortOrder    string
}

// ForChain returns a pointer suitable for QueryOptions.ChainID
func ForChain(chainID uint64) *uint64 {
	return &chainID
}

// Validate checks the sort options
func (q QueryOptions) Validate() error {
	switch q.SortBy {
	case "", SortByTimestamp, SortByContractName, SortByChainID:
	default:
		return NewError(KindValidationFailed, "unsupported sort field", nil, map[string]any{"sortBy": q.SortBy})
	}
	switch q.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return NewError(KindValidationFailed, "unsupported sort order", nil, map[string]any{"sortOrder": q.SortOrder})
	}
	return nil
}

// ApplyQuery filters records by equality on contract and network name and
// applies an optional stable sort. The chain filter is applied too, so callers
// may pass records from several networks.
func ApplyQuery(records []*models.ContractRecord, q QueryOptions) []*models.ContractRecord {
	result := lo.Filter(records, func(rec *models.ContractRecord, _ int) bool {
		if q.ChainID != nil && rec.ChainID != *q.ChainID {
			return false
		}
		if q.ContractName != "" && rec.ContractName != q.ContractName {
			return false
		}
		if q.NetworkName != "" && rec.NetworkName != q.NetworkName {
			return false
		}
		return true
	})

	var less func(a, b *models.ContractRecord) bool
	switch q.SortBy {
	case SortByTimestamp:
		less = func(a, b *models.ContractRecord) bool { return a.Timestamp < b.Timestamp }
	case SortByContractName:
		less = func(a, b *models.ContractRecord) bool { return a.ContractName < b.ContractName }
	case SortByChainID:
		less = func(a, b *models.ContractRecord) bool { return a.ChainID < b.ChainID }
	default:
		return result
	}

	desc := q.SortOrder == SortDesc
	sort.SliceStable(result, func(i, j int) bool {
		if desc {
			return less(result[j], result[i])
		}
		return less(result[i], result[j])
	})
	return result
}

// SortByKey orders records by chain ID then contract name
func SortByKey(records []*models.ContractRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].ChainID != records[j].ChainID {
			return records[i].ChainID < records[j].ChainID
		}
		return records[i].ContractName < records[j].ContractName
	})
}
