// Package rules loads custom categorization keyword rules from YAML.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/models"

	"gopkg.in/yaml.v3"
)

// Store loads keyword rule sets from a YAML file. A missing file is not
// an error: the categorizer falls back to its built-in defaults.
type Store struct {
	RulesFile string
	logger    logging.Logger
}

// NewStore creates a rule store for the given file. An empty filename
// means "rules.yaml" searched in the standard locations.
func NewStore(rulesFile string, logger logging.Logger) *Store {
	return &Store{RulesFile: rulesFile, logger: logger}
}

// findRulesFile looks for the rules file in standard locations: the path
// as given, ./config/, and ~/.config/billrecon/.
func (s *Store) findRulesFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", os.ErrNotExist
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, ".config", "billrecon", filename))
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

// LoadRules loads the rule list from the YAML file. Keywords are
// lower-cased on load so matching stays case-insensitive regardless of
// how the file was written.
func (s *Store) LoadRules() ([]models.RuleConfig, error) {
	filename := s.RulesFile
	if filename == "" {
		filename = "rules.yaml"
	}

	filePath, err := s.findRulesFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithField("file", filename).Debug("Rules file not found, using built-in rules")
			return []models.RuleConfig{}, nil
		}
		return nil, fmt.Errorf("error resolving rules file: %w", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading rules file: %w", err)
	}

	var config models.RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing rules file: %w", err)
	}

	rules := config.Rules
	for i := range rules {
		for j, keyword := range rules[i].Keywords {
			rules[i].Keywords[j] = strings.ToLower(keyword)
		}
	}

	s.logger.WithFields(
		logging.Field{Key: "file", Value: filePath},
		logging.Field{Key: "count", Value: len(rules)},
	).Debug("Loaded categorization rules")
	return rules, nil
}
