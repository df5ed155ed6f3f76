// Package credentials supplies the TMDB API key to the pipeline.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvVar holds the API key in CI and local .env files.
const DefaultEnvVar = "TMDB_API_KEY"

// DefaultKeyFile is read when the environment variable is not set.
const DefaultKeyFile = "api_key.txt"

// ErrUnavailable is returned when no provider can supply a key.
var ErrUnavailable = errors.New("tmdb api key unavailable")

// Provider returns an API key.
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// Env reads the key from an environment variable.
type Env struct {
	Var string
}

func (e Env) APIKey(context.Context) (string, error) {
	name := e.Var
	if name == "" {
		name = DefaultEnvVar
	}
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s is not set", ErrUnavailable, name)
}

// File reads the key from a text file.
type File struct {
	Path string
}

func (f File) APIKey(context.Context) (string, error) {
	path := f.Path
	if path == "" {
		path = DefaultKeyFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrUnavailable, path)
	}
	return key, nil
}

// Static returns a fixed key.
type Static string

func (s Static) APIKey(context.Context) (string, error) {
	if s == "" {
		return "", ErrUnavailable
	}
	return string(s), nil
}

// Chain tries each provider in order and returns the first key found.
type Chain []Provider

func (c Chain) APIKey(ctx context.Context) (string, error) {
	var errs []error
	for _, p := range c {
		key, err := p.APIKey(ctx)
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrUnavailable
	}
	return "", errors.Join(errs...)
}

// LoadDotEnv loads .env.local and .env from the working directory if present.
// Variables already set in the environment are not overridden. Files that fail
// to parse are reported; the remaining files are still loaded.
func LoadDotEnv() error {
	var errs []error
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			errs = append(errs, fmt.Errorf("loading %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
