package identity

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/frahmantamala/assistant-guard/internal"
)

type SeedFile struct {
	Users []CreateUserDTO `yaml:"users"`
}

type SeedResult struct {
	Created []string
	Skipped []string
}

func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*SeedFile, error) {
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &sf, nil
}

// Seed creates every listed user; existing usernames or emails are skipped.
func (s *Service) Seed(ctx context.Context, sf *SeedFile) (*SeedResult, error) {
	res := &SeedResult{}
	for _, dto := range sf.Users {
		_, err := s.CreateUser(ctx, dto)
		if err == nil {
			res.Created = append(res.Created, dto.Username)
			continue
		}
		if appErr, ok := internal.IsAppError(err); ok && appErr.Code == internal.ErrCodeDuplicateIdentity {
			res.Skipped = append(res.Skipped, dto.Username)
			continue
		}
		return res, fmt.Errorf("seed user %q: %w", dto.Username, err)
	}
	s.logger.InfoContext(ctx, "seed finished", "created", len(res.Created), "skipped", len(res.Skipped))
	return res, nil
}
