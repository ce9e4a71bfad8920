package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LocalProviderConfig holds configuration for the local file secrets provider
type LocalProviderConfig struct {
	// BasePath is the base directory for secrets
	BasePath string
	// Logger is the logger instance
	Logger *zap.Logger
}

// LocalProvider implements the Provider interface using local files.
// Secrets are stored as one of:
//   - base-path/secret-name/key (each key is a separate file)
//   - base-path/secret-name.yaml (single file with all keys)
//   - base-path/secret-name.json (single file with all keys)
type LocalProvider struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalProvider creates a new local file secrets provider
func NewLocalProvider(cfg *LocalProviderConfig) (*LocalProvider, error) {
	if cfg == nil || cfg.BasePath == "" {
		return nil, fmt.Errorf("%w: base path is required", ErrProviderNotConfigured)
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to access base path: %w", ErrProviderNotConfigured, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: base path is not a directory: %s", ErrProviderNotConfigured, cfg.BasePath)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LocalProvider{basePath: cfg.BasePath, logger: logger}, nil
}

// Type returns the provider type
func (p *LocalProvider) Type() ProviderType {
	return ProviderTypeLocal
}

// GetSecret retrieves a secret by name, trying the directory layout first
// and then YAML and JSON files.
func (p *LocalProvider) GetSecret(_ context.Context, name string) (*Secret, error) {
	start := time.Now()

	cleanPath, err := p.cleanPath(name)
	if err != nil {
		RecordOperation(p.Type(), "get", time.Since(start), err)
		return nil, err
	}

	dirPath := filepath.Join(p.basePath, cleanPath)
	if info, statErr := os.Stat(dirPath); statErr == nil && info.IsDir() {
		secret, readErr := p.readDirectory(dirPath, cleanPath)
		if readErr == nil {
			RecordOperation(p.Type(), "get", time.Since(start), nil)
			return secret, nil
		}
		p.logger.Debug("Failed to read secret from directory, trying file formats",
			zap.String("path", dirPath),
			zap.Error(readErr),
		)
	}

	formats := []struct {
		ext    string
		decode func([]byte, interface{}) error
		encode func(interface{}) ([]byte, error)
	}{
		{".yaml", yaml.Unmarshal, json.Marshal},
		{".yml", yaml.Unmarshal, json.Marshal},
		{".json", json.Unmarshal, json.Marshal},
	}

	for _, format := range formats {
		filePath := filepath.Join(p.basePath, cleanPath+format.ext)
		content, readErr := os.ReadFile(filepath.Clean(filePath))
		if readErr != nil {
			continue
		}

		var raw map[string]interface{}
		if decodeErr := format.decode(content, &raw); decodeErr != nil {
			err := fmt.Errorf("failed to parse %s: %w", filePath, decodeErr)
			RecordOperation(p.Type(), "get", time.Since(start), err)
			return nil, err
		}

		secret := &Secret{
			Name:     cleanPath,
			Data:     flatten(raw, format.encode),
			Metadata: map[string]string{"source": strings.TrimPrefix(format.ext, "."), "file": filePath},
		}
		if info, statErr := os.Stat(filePath); statErr == nil {
			modTime := info.ModTime()
			secret.UpdatedAt = &modTime
		}
		RecordOperation(p.Type(), "get", time.Since(start), nil)
		return secret, nil
	}

	err = fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	RecordOperation(p.Type(), "get", time.Since(start), err)
	return nil, err
}

func (p *LocalProvider) cleanPath(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidPath
	}
	cleanPath := filepath.Clean(name)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: path contains invalid characters", ErrInvalidPath)
	}
	return cleanPath, nil
}

// readDirectory reads a secret from a directory where each file is a key
func (p *LocalProvider) readDirectory(dirPath, name string) (*Secret, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	data := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		filePath := filepath.Join(dirPath, entry.Name())
		content, err := os.ReadFile(filepath.Clean(filePath))
		if err != nil {
			p.logger.Warn("Failed to read key file",
				zap.String("file", filePath),
				zap.Error(err),
			)
			continue
		}

		key := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		data[key] = []byte(strings.TrimRight(string(content), "\n"))
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no valid key files found")
	}

	secret := &Secret{
		Name:     name,
		Data:     data,
		Metadata: map[string]string{"source": "directory"},
	}
	if info, err := os.Stat(dirPath); err == nil {
		modTime := info.ModTime()
		secret.UpdatedAt = &modTime
	}
	return secret, nil
}

// HealthCheck verifies the base path is still readable
func (p *LocalProvider) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.basePath); err != nil {
		return fmt.Errorf("local secrets path unavailable: %w", err)
	}
	return nil
}

// Close is a no-op for the local provider
func (p *LocalProvider) Close() error {
	return nil
}
