package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"claimchain/internal/types"
)

// claimsFile is the on-disk format for a batch of claims.
//
//	claims:
//	  - statement: "Expired tokens are refreshed before authorization"
//	    type: functional
//	    source: "docs/auth.md section 3"
type claimsFile struct {
	Claims []claimEntry `yaml:"claims"`
}

type claimEntry struct {
	Statement string `yaml:"statement"`
	Type      string `yaml:"type"`
	Source    string `yaml:"source"`
}

var claimTypes = map[string]types.ClaimType{
	"functional":  types.ClaimFunctional,
	"behavioral":  types.ClaimBehavioral,
	"performance": types.ClaimPerformance,
	"security":    types.ClaimSecurity,
	"testing":     types.ClaimTesting,
	"requirement": types.ClaimRequirement,
}

// loadClaims reads a claims file and materializes typed claims with fresh ids.
func loadClaims(path string) ([]types.Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read claims file: %w", err)
	}
	var file claimsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse claims file: %w", err)
	}
	if len(file.Claims) == 0 {
		return nil, fmt.Errorf("%s contains no claims", path)
	}

	claims := make([]types.Claim, 0, len(file.Claims))
	for i, entry := range file.Claims {
		statement := strings.TrimSpace(entry.Statement)
		if statement == "" {
			return nil, fmt.Errorf("claim %d has an empty statement", i+1)
		}
		ct := types.ClaimFunctional
		if entry.Type != "" {
			var ok bool
			if ct, ok = claimTypes[strings.ToLower(entry.Type)]; !ok {
				return nil, fmt.Errorf("claim %d has unknown type %q", i+1, entry.Type)
			}
		}
		claims = append(claims, types.Claim{
			ID:            types.NewID(),
			Statement:     statement,
			Type:          ct,
			SourceExcerpt: entry.Source,
			ExtractedAt:   time.Now(),
		})
	}
	return claims, nil
}
