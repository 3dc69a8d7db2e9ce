package interactive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/sahilm/fuzzy"
	"github.com/trebuchet-org/treb-state/internal/domain/config"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// PrompterAdapter asks the operator through promptui
type PrompterAdapter struct {
	config *config.RuntimeConfig
}

// NewPrompterAdapter creates a new prompter adapter
func NewPrompterAdapter(cfg *config.RuntimeConfig) *PrompterAdapter {
	return &PrompterAdapter{config: cfg}
}

// Confirm asks a yes/no question; anything but an explicit yes is a no
func (p *PrompterAdapter) Confirm(label string) bool {
	if p.config.NonInteractive {
		return false
	}
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

// SelectRecord lets the operator pick one record with fuzzy search
func (p *PrompterAdapter) SelectRecord(records []*models.ContractRecord, label string) (*models.ContractRecord, error) {
	if p.config.NonInteractive {
		return nil, errors.New("interactive selection not available in non-interactive mode")
	}
	switch len(records) {
	case 0:
		return nil, errors.New("no records to select from")
	case 1:
		return records[0], nil
	}

	options := formatRecordOptions(records)
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "▸ {{ . | cyan }}",
		Inactive: "  {{ . | faint }}",
		Selected: "✓ {{ . | green }}",
		Help:     color.New(color.FgYellow).Sprint("Use arrow keys to navigate, Enter to select"),
	}
	sel := promptui.Select{
		Label:             label,
		Items:             options,
		Templates:         templates,
		Size:              10,
		StartInSearchMode: true,
		Searcher:          fuzzySearcher(plainRecordOptions(records)),
	}

	index, _, err := sel.Run()
	if err != nil {
		return nil, fmt.Errorf("selection cancelled: %w", err)
	}
	return records[index], nil
}

// formatRecordOptions renders "Name (network) address" lines
func formatRecordOptions(records []*models.ContractRecord) []string {
	options := make([]string, len(records))
	for i, rec := range records {
		name := color.New(color.FgWhite, color.Bold).Sprint(rec.ContractName)
		network := color.New(color.FgBlue).Sprint(networkLabel(rec))
		options[i] = fmt.Sprintf("%s (%s) %s", name, network, rec.PublicAddress())
		if rec.IsProxy() {
			options[i] += color.New(color.FgYellow).Sprint(" [proxy]")
		}
	}
	return options
}

func plainRecordOptions(records []*models.ContractRecord) []string {
	options := make([]string, len(records))
	for i, rec := range records {
		options[i] = fmt.Sprintf("%s %s", rec.ContractName, networkLabel(rec))
	}
	return options
}

func networkLabel(rec *models.ContractRecord) string {
	if rec.NetworkName != "" {
		return rec.NetworkName
	}
	return fmt.Sprintf("chain %d", rec.ChainID)
}

// fuzzySearcher matches by substring first, then fuzzily
func fuzzySearcher(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		if input == "" {
			return true
		}
		input = strings.ToLower(input)
		item := strings.ToLower(items[index])
		if strings.Contains(item, input) {
			return true
		}
		return len(fuzzy.Find(input, []string{item})) > 0
	}
}

var (
	_ usecase.ConfirmPrompter = (*PrompterAdapter)(nil)
	_ usecase.RecordSelector  = (*PrompterAdapter)(nil)
)
