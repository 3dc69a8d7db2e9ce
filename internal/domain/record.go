package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/go-cmp/cmp"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// GenerateKey builds the canonical record key "<chainId>-<contractName>"
func GenerateKey(chainID uint64, contractName string) string {
	return strconv.FormatUint(chainID, 10) + "-" + contractName
}

// KeyPrefix returns the prefix shared by every key on a chain
func KeyPrefix(chainID uint64) string {
	return strconv.FormatUint(chainID, 10) + "-"
}

// ParseKey is the inverse of GenerateKey. Contract names may contain dashes,
// chain IDs never do, so the key is split at the first dash.
func ParseKey(key string) (uint64, string, error) {
	idx := strings.IndexByte(key, '-')
	if idx <= 0 || idx == len(key)-1 {
		return 0, "", NewError(KindValidationFailed, "malformed record key", nil, map[string]any{"key": key})
	}
	chainID, err := strconv.ParseUint(key[:idx], 10, 64)
	if err != nil {
		return 0, "", NewError(KindValidationFailed, "malformed chain id in record key", err, map[string]any{"key": key})
	}
	return chainID, key[idx+1:], nil
}

// IsValidRecord checks the structural validity of a record and returns a
// VALIDATION_FAILED error describing every problem found. Hash consistency
// between factoryByteCodeHash and implementationHash is an integrity concern
// and is reported by HashConsistent instead.
func IsValidRecord(rec *models.ContractRecord) error {
	if rec == nil {
		return NewError(KindValidationFailed, "record is nil", nil, nil)
	}

	var problems []string
	if strings.TrimSpace(rec.ContractName) == "" {
		problems = append(problems, "contractName is empty")
	}
	if rec.ChainID == 0 {
		problems = append(problems, "chainId is zero")
	}
	if !common.IsHexAddress(rec.Address) {
		problems = append(problems, fmt.Sprintf("address %q is not a hex address", rec.Address))
	}
	if rec.ProxyAddress != "" && !common.IsHexAddress(rec.ProxyAddress) {
		problems = append(problems, fmt.Sprintf("proxyAddress %q is not a hex address", rec.ProxyAddress))
	}
	if rec.FactoryByteCodeHash == "" {
		problems = append(problems, "factoryByteCodeHash is empty")
	} else if err := checkHash(rec.FactoryByteCodeHash); err != nil {
		problems = append(problems, fmt.Sprintf("factoryByteCodeHash: %v", err))
	}
	if rec.Timestamp < 0 {
		problems = append(problems, "timestamp is negative")
	}

	if len(problems) == 0 {
		return nil
	}
	return NewError(KindValidationFailed, strings.Join(problems, "; "), nil, map[string]any{
		"key":    GenerateKey(rec.ChainID, rec.ContractName),
		"record": rec,
	})
}

// BindChain fills rec.ChainID from chainID when unset and rejects a record
// addressed to a different chain.
func BindChain(chainID uint64, rec *models.ContractRecord) error {
	if rec == nil {
		return NewError(KindValidationFailed, "record is nil", nil, nil)
	}
	if rec.ChainID == 0 {
		rec.ChainID = chainID
	}
	if rec.ChainID != chainID {
		return NewError(KindValidationFailed, "record chain id does not match target chain", nil, map[string]any{
			"key":           GenerateKey(chainID, rec.ContractName),
			"recordChainId": rec.ChainID,
		})
	}
	return nil
}

// RefreshTimestamp stamps rec with the write time, keeping it at or after the
// previous timestamp of the same key.
func RefreshTimestamp(rec *models.ContractRecord, previous int64, now time.Time) {
	ts := now.UnixMilli()
	if previous > ts {
		ts = previous
	}
	rec.Timestamp = ts
}

// ValidRecord is the boolean form of IsValidRecord
func ValidRecord(rec *models.ContractRecord) bool {
	return IsValidRecord(rec) == nil
}

func checkHash(hash string) error {
	if !strings.HasPrefix(hash, "0x") && !strings.HasPrefix(hash, "0X") {
		return nil
	}
	if _, err := hexutil.Decode(hash); err != nil {
		return fmt.Errorf("%q is not valid hex: %w", hash, err)
	}
	return nil
}

// HashConsistent reports whether implementationHash, when present, matches factoryByteCodeHash
func HashConsistent(rec *models.ContractRecord) bool {
	return rec.ImplementationHash == "" || rec.ImplementationHash == rec.FactoryByteCodeHash
}

var bigIntComparer = cmp.Comparer(func(x, y *big.Int) bool {
	if x == nil || y == nil {
		return x == y
	}
	return x.Cmp(y) == 0
})

// CompareRecords reports whether two records are equal in every field.
// Deployment args are compared in their serialized canonical form.
func CompareRecords(a, b *models.ContractRecord) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ContractName != b.ContractName ||
		a.ChainID != b.ChainID ||
		a.NetworkName != b.NetworkName ||
		a.Address != b.Address ||
		a.FactoryByteCodeHash != b.FactoryByteCodeHash ||
		a.ImplementationHash != b.ImplementationHash ||
		a.ProxyAddress != b.ProxyAddress ||
		a.Timestamp != b.Timestamp {
		return false
	}

	argsA, errA := a.DeploymentArgs.Canonical()
	argsB, errB := b.DeploymentArgs.Canonical()
	if errA != nil || errB != nil {
		return false
	}
	if len(argsA) == 0 && len(argsB) == 0 {
		return true
	}
	return cmp.Equal(argsA, argsB, bigIntComparer)
}

// DecodeOptions tunes DecodeRecord
type DecodeOptions struct {
	// LegacyBigIntStrings reinterprets long all-digit strings in deployment
	// args as big integers, matching data written by the legacy KV store.
	LegacyBigIntStrings bool
}

// EncodeRecord serializes a record with big integers tagged
func EncodeRecord(rec *models.ContractRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, NewError(KindSerialization, "failed to encode record", err, map[string]any{
			"key": GenerateKey(rec.ChainID, rec.ContractName),
		})
	}
	return data, nil
}

// DecodeRecord is the single decode boundary: it either yields a valid typed
// record or a SERIALIZATION_FAILED error.
func DecodeRecord(data []byte, opts DecodeOptions) (*models.ContractRecord, error) {
	var rec models.ContractRecord
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		return nil, NewError(KindSerialization, "failed to decode record", err, nil)
	}
	if opts.LegacyBigIntStrings {
		rec.DeploymentArgs = rec.DeploymentArgs.ReviveDigitStrings(models.LegacyBigIntMinDigits)
	}
	if err := IsValidRecord(&rec); err != nil {
		return nil, NewError(KindSerialization, "decoded record is invalid", err, map[string]any{
			"key": GenerateKey(rec.ChainID, rec.ContractName),
		})
	}
	return &rec, nil
}
