package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	headerStyle    = color.New(color.FgCyan, color.Bold)
	nameStyle      = color.New(color.FgYellow, color.Bold)
	labelStyle     = color.New(color.Faint)
	timestampStyle = color.New(color.Faint)
	proxyStyle     = color.New(color.FgMagenta)
	chainHeader    = color.New(color.BgCyan, color.FgBlack, color.Bold)
	okStyle        = color.New(color.FgGreen)
	warnStyle      = color.New(color.FgYellow)
	errStyle       = color.New(color.FgRed)
)

// FormatWarning formats a warning message with the warning icon
func FormatWarning(message string) string {
	return warnStyle.Sprintf("⚠️  %s", message)
}

// FormatError formats an error message with the error icon
func FormatError(message string) string {
	if len(message) > 0 {
		message = strings.ToUpper(message[:1]) + message[1:]
	}
	return errStyle.Sprintf("❌ %s", message)
}

// FormatSuccess formats a success message with the success icon
func FormatSuccess(message string) string {
	return okStyle.Sprintf("✅ %s", message)
}

// Checksum returns the EIP-55 form of a hex address, or the input unchanged
func Checksum(address string) string {
	if !common.IsHexAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}

// Title capitalizes words for display, e.g. "rolled-back" -> "Rolled-Back"
func Title(s string) string {
	return cases.Title(language.English).String(s)
}

// FormatTimestamp renders epoch millis in UTC
func FormatTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05 UTC")
}

// NetworkLabel prefers the network name and falls back to the chain ID
func NetworkLabel(network string, chainID uint64) string {
	if network != "" {
		return fmt.Sprintf("%s (%d)", network, chainID)
	}
	return fmt.Sprintf("chain %d", chainID)
}

// PrintJSON writes v as indented JSON
func PrintJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
